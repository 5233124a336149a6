package counter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	c "github.com/d0ngw/kcounter/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreConfigParse(t *testing.T) {
	conf := &StoreConfig{}
	err := c.LoadYAMl([]byte(`
name: wtf
file:
  path: /tmp/wtf.json
  format: json
  perm: "0600"
`), conf)
	require.NoError(t, err)
	require.NoError(t, conf.Parse())
	assert.Equal(t, "wtf", conf.Name)
	assert.Equal(t, BackendFile, conf.Backend)
	assert.Equal(t, "/tmp/wtf.json", conf.File.Path)
	assert.Equal(t, JSONCodec{}, conf.File.codec)
	assert.Equal(t, os.FileMode(0600), conf.File.perm)

	conf = &StoreConfig{}
	err = c.LoadYAMl([]byte(`
backend: redis
redis:
  servers:
    - id: r1
      host: 127.0.0.1
      port: 6379
      db: 2
  groups:
    wtf: [r1]
  group: wtf
`), conf)
	require.NoError(t, err)
	require.NoError(t, conf.Parse())
	assert.Equal(t, "kcounter:", conf.Redis.KeyPrefix)
	assert.Equal(t, 2, conf.Redis.Servers[0].DB)
	servers, err := conf.Redis.GetGroupServers("wtf")
	require.NoError(t, err)
	assert.Len(t, servers, 1)
	conf.Redis.Close()

	conf = &StoreConfig{}
	err = c.LoadYAMl([]byte(`
backend: mysql
mysql:
  url: 127.0.0.1:3306
  schema: test
  user: root
`), conf)
	require.NoError(t, err)
	require.NoError(t, conf.Parse())
	assert.Equal(t, "kcounter_entries", conf.MySQL.Table)
}

func TestStoreConfigParseBad(t *testing.T) {
	bad := []*StoreConfig{
		{},
		{Backend: "etcd"},
		{Backend: BackendSQLite},
		{Backend: BackendSQLite, SQLite: &SQLiteConfig{}},
		{File: &FileConfig{}},
		{File: &FileConfig{Path: "a.txt", Format: "xml"}},
		{File: &FileConfig{Path: "a.txt", Perm: "999"}},
		{File: &FileConfig{Path: "a.txt", Perm: "01777"}},
		{Backend: BackendRedis, Redis: &RedisConfig{}},
		{Backend: BackendMySQL, MySQL: &MySQLConfig{}},
	}
	for _, conf := range bad {
		assert.Error(t, conf.Parse(), "%+v", conf)
	}

	// only the selected backend is parsed
	conf := &StoreConfig{Backend: BackendSQLite, SQLite: &SQLiteConfig{DSN: ":memory:"}, File: &FileConfig{}}
	assert.NoError(t, conf.Parse())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wtf.msgpack")
	conf := &StoreConfig{Name: "wtf", File: &FileConfig{Path: path, Format: FormatMsgpack}}
	require.NoError(t, conf.Parse())
	store, err := Open(conf)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	assert.Equal(t, "wtf", store.Name())
	_, err = store.Increment(ctx, "alice")
	assert.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenFileStore("wtf", path, MsgpackCodec{}, 0)
	require.NoError(t, err)
	n, err := store.Lookup(ctx, "alice")
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	require.NoError(t, store.Close())

	conf = &StoreConfig{Name: "wtf", Backend: BackendSQLite, SQLite: &SQLiteConfig{DSN: ":memory:"}}
	require.NoError(t, conf.Parse())
	store, err = Open(conf)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	// not parsed
	_, err = Open(&StoreConfig{Backend: BackendFile, File: &FileConfig{Path: path}})
	assert.Error(t, err)
	_, err = Open(nil)
	assert.Error(t, err)
	_, err = Open(&StoreConfig{Backend: "etcd"})
	assert.Error(t, err)
}

package cache

import (
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisClient connect to the redis in KCOUNTER_REDIS_ADDR, such as 127.0.0.1:6379
func newTestRedisClient(t *testing.T) *RedisClient {
	t.Helper()
	addr := os.Getenv("KCOUNTER_REDIS_ADDR")
	if addr == "" {
		t.Skip("KCOUNTER_REDIS_ADDR not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	conf := &RedisConf{
		Servers: []*RedisServer{{ID: "test", Host: host, Port: port, DB: 15}},
		Groups:  map[string][]string{"test": {"test"}},
	}
	require.NoError(t, conf.Parse())
	client := NewRedisClientWithConf(conf)
	require.NoError(t, client.Ping("test"))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisClientIncr(t *testing.T) {
	client := newTestRedisClient(t)
	param := NewParamConf("test", "kcounter_test_")
	key := param.NewParamKey("incr")
	_, err := client.Del(key)
	require.NoError(t, err)

	_, exist, err := client.GetInt64(key)
	assert.NoError(t, err)
	assert.False(t, exist)

	for i := int64(1); i <= 3; i++ {
		n, err := client.Incr(key)
		assert.NoError(t, err)
		assert.Equal(t, i, n)
	}
	n, exist, err := client.GetInt64(key)
	assert.NoError(t, err)
	assert.True(t, exist)
	assert.Equal(t, int64(3), n)

	got := map[string]int64{}
	err = client.ScanInt64s("test", "kcounter_test_*", func(k string, v int64) error {
		got[k] = v
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), got["kcounter_test_incr"])

	deleted, err := client.Del(key)
	assert.NoError(t, err)
	assert.True(t, deleted)
}

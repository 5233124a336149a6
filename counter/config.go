package counter

import (
	"fmt"
	"os"
	"strconv"

	"github.com/d0ngw/kcounter/cache"
	c "github.com/d0ngw/kcounter/common"
)

// Backends of the store
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

// FileConfig config of FileStore
type FileConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` //text,json或msgpack,默认text
	Perm   string `yaml:"perm"`   //八进制的文件权限,默认0644
	perm   os.FileMode
	codec  Codec
}

// Parse implements Configurer
func (p *FileConfig) Parse() error {
	if p.Path == "" {
		return fmt.Errorf("need file path")
	}
	codec, err := CodecByName(p.Format)
	if err != nil {
		return err
	}
	p.codec = codec
	p.perm = 0644
	if p.Perm != "" {
		perm, err := strconv.ParseUint(p.Perm, 8, 32)
		if err != nil || perm > 0777 {
			return fmt.Errorf("invalid file perm %q", p.Perm)
		}
		p.perm = os.FileMode(perm)
	}
	return nil
}

// SQLiteConfig config of SQLiteStore
type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

// Parse implements Configurer
func (p *SQLiteConfig) Parse() error {
	if p.DSN == "" {
		return fmt.Errorf("need sqlite dsn")
	}
	return nil
}

// RedisConfig config of RedisStore
type RedisConfig struct {
	cache.RedisConf `yaml:",inline"`
	Group           string `yaml:"group"`
	KeyPrefix       string `yaml:"key_prefix"`
}

// Parse implements Configurer
func (p *RedisConfig) Parse() error {
	if p.Group == "" {
		return fmt.Errorf("need redis group")
	}
	if p.KeyPrefix == "" {
		p.KeyPrefix = "kcounter:"
	}
	return p.RedisConf.Parse()
}

// StoreConfig config of the counter store
type StoreConfig struct {
	Name    string        `yaml:"name"`
	Backend string        `yaml:"backend"` //file,sqlite,redis或mysql,默认file
	File    *FileConfig   `yaml:"file"`
	SQLite  *SQLiteConfig `yaml:"sqlite"`
	Redis   *RedisConfig  `yaml:"redis"`
	MySQL   *MySQLConfig  `yaml:"mysql"`
}

// Parse implements Configurer, only the config of the selected backend is parsed
func (p *StoreConfig) Parse() error {
	if p.Backend == "" {
		p.Backend = BackendFile
	}
	var backendConf c.Configurer
	switch p.Backend {
	case BackendFile:
		if p.File != nil {
			backendConf = p.File
		}
	case BackendSQLite:
		if p.SQLite != nil {
			backendConf = p.SQLite
		}
	case BackendRedis:
		if p.Redis != nil {
			backendConf = p.Redis
		}
	case BackendMySQL:
		if p.MySQL != nil {
			backendConf = p.MySQL
		}
	default:
		return fmt.Errorf("unknown counter backend %q", p.Backend)
	}
	if backendConf == nil {
		return fmt.Errorf("no %s config for counter store %s", p.Backend, p.Name)
	}
	return backendConf.Parse()
}

// Open open the store of the parsed config
func Open(conf *StoreConfig) (Store, error) {
	if conf == nil {
		return nil, fmt.Errorf("no store config")
	}
	var (
		store Store
		err   error
	)
	switch conf.Backend {
	case BackendFile:
		if conf.File == nil || conf.File.codec == nil {
			return nil, fmt.Errorf("file config of %s is not parsed", conf.Name)
		}
		var fileStore *FileStore
		if fileStore, err = OpenFileStore(conf.Name, conf.File.Path, conf.File.codec, conf.File.perm); err == nil {
			store = fileStore
		}
	case BackendSQLite:
		if conf.SQLite == nil {
			return nil, fmt.Errorf("no sqlite config for %s", conf.Name)
		}
		var sqliteStore *SQLiteStore
		if sqliteStore, err = OpenSQLiteStore(conf.Name, conf.SQLite.DSN); err == nil {
			store = sqliteStore
		}
	case BackendRedis:
		if conf.Redis == nil {
			return nil, fmt.Errorf("no redis config for %s", conf.Name)
		}
		client := cache.NewRedisClientWithConf(&conf.Redis.RedisConf)
		var redisStore *RedisStore
		if redisStore, err = NewRedisStore(conf.Name, client, cache.NewParamConf(conf.Redis.Group, conf.Redis.KeyPrefix)); err == nil {
			store = redisStore
		}
	case BackendMySQL:
		var mysqlStore *MySQLStore
		if mysqlStore, err = OpenMySQLStore(conf.Name, conf.MySQL); err == nil {
			store = mysqlStore
		}
	default:
		return nil, fmt.Errorf("unknown counter backend %q", conf.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

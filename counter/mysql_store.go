package counter

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"
	"unicode/utf8"

	c "github.com/d0ngw/kcounter/common"
	"github.com/go-sql-driver/mysql"
)

var _ Store = (*MySQLStore)(nil)

// maxMySQLKeyLen is the byte length of the VARBINARY key column, keys compare byte by
// byte with trailing spaces kept
const maxMySQLKeyLen = 767

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// MySQLConfig MySQL数据库配置
type MySQLConfig struct {
	DSN           string `yaml:"dsn"` //完整的DSN,设置后忽略User,Pass,URL,Schema
	User          string `yaml:"user"`
	Pass          string `yaml:"pass"`
	URL           string `yaml:"url"`
	Schema        string `yaml:"schema"`
	Table         string `yaml:"table"`
	MaxConn       int    `yaml:"maxConn"`
	MaxIdle       int    `yaml:"maxIdle"`
	MaxTimeSecond int    `yaml:"maxTimeSecond"`
	Charset       string `yaml:"charset"`
}

// Parse implements Configurer
func (p *MySQLConfig) Parse() error {
	if p.DSN != "" {
		if _, err := mysql.ParseDSN(p.DSN); err != nil {
			return fmt.Errorf("invalid mysql dsn,err:%w", err)
		}
	} else {
		if p.URL == "" {
			return fmt.Errorf("need url")
		}
		if p.Schema == "" {
			return fmt.Errorf("need schema")
		}
	}
	if p.Table == "" {
		p.Table = "kcounter_entries"
	}
	if !tableNameRe.MatchString(p.Table) {
		return fmt.Errorf("invalid table name %q", p.Table)
	}
	return nil
}

// FormatDSN build the driver dsn
func (p *MySQLConfig) FormatDSN() (string, error) {
	if p.DSN != "" {
		cfg, err := mysql.ParseDSN(p.DSN)
		if err != nil {
			return "", err
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Pass
	cfg.Net = "tcp"
	cfg.Addr = p.URL
	cfg.DBName = p.Schema
	cfg.ParseTime = true
	cfg.Loc = time.Local
	charset := p.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	cfg.Params = map[string]string{"charset": charset}
	return cfg.FormatDSN(), nil
}

// MySQLStore is a Store backed by a MySQL table, increment runs in a transaction
type MySQLStore struct {
	name   string
	table  string
	db     *sql.DB
	closed atomic.Bool
}

// OpenMySQLStore connect to mysql and create the table if absent
func OpenMySQLStore(name string, conf *MySQLConfig) (*MySQLStore, error) {
	if conf == nil {
		return nil, fmt.Errorf("no mysql config")
	}
	if err := conf.Parse(); err != nil {
		return nil, err
	}
	dsn, err := conf.FormatDSN()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "mysql:" + conf.Table
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, ioError("open mysql", conf.Table, err)
	}
	db.SetMaxIdleConns(conf.MaxIdle)
	db.SetMaxOpenConns(conf.MaxConn)
	if conf.MaxTimeSecond > 0 {
		db.SetConnMaxLifetime(time.Duration(conf.MaxTimeSecond) * time.Second)
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"`k` VARBINARY(%d) NOT NULL,"+
		"`cnt` BIGINT UNSIGNED NOT NULL DEFAULT 0,"+
		"PRIMARY KEY (`k`)"+
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin", conf.Table, maxMySQLKeyLen)
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, ioError("create table", conf.Table, err)
	}
	c.Infof("open mysql counter store %s,table:%s", name, conf.Table)
	return &MySQLStore{name: name, table: conf.Table, db: db}, nil
}

// Name implements Store.Name
func (p *MySQLStore) Name() string {
	return p.name
}

func (p *MySQLStore) checkKey(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidKey, key)
	}
	if len(key) > maxMySQLKeyLen {
		return fmt.Errorf("%w: key longer than %d bytes", ErrInvalidKey, maxMySQLKeyLen)
	}
	return nil
}

// Lookup implements Store.Lookup
func (p *MySQLStore) Lookup(ctx context.Context, key string) (uint64, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	var count uint64
	err := p.db.QueryRowContext(ctx, "SELECT `cnt` FROM `"+p.table+"` WHERE `k` = ?", key).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, p.wrapErr("lookup", err)
	}
	return count, nil
}

// Increment implements Store.Increment
func (p *MySQLStore) Increment(ctx context.Context, key string) (uint64, error) {
	if err := p.checkKey(key); err != nil {
		return 0, err
	}
	if p.closed.Load() {
		return 0, ErrClosed
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, p.wrapErr("begin", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, "INSERT INTO `"+p.table+"` (`k`, `cnt`) VALUES (?, 1) ON DUPLICATE KEY UPDATE `cnt` = `cnt` + 1", key); err != nil {
		return 0, p.wrapErr("increment", err)
	}
	var count uint64
	if err = tx.QueryRowContext(ctx, "SELECT `cnt` FROM `"+p.table+"` WHERE `k` = ?", key).Scan(&count); err != nil {
		return 0, p.wrapErr("increment", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, p.wrapErr("commit", err)
	}
	return count, nil
}

// Snapshot implements Store.Snapshot
func (p *MySQLStore) Snapshot(ctx context.Context) (Fields, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := p.db.QueryContext(ctx, "SELECT `k`, `cnt` FROM `"+p.table+"` ORDER BY `k`")
	if err != nil {
		return nil, p.wrapErr("snapshot", err)
	}
	defer rows.Close()

	fields := Fields{}
	for rows.Next() {
		var key string
		var count uint64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, p.wrapErr("snapshot", err)
		}
		fields[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrapErr("snapshot", err)
	}
	return fields, nil
}

func (p *MySQLStore) wrapErr(op string, err error) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return ioError(op, p.table, err)
}

// Close implements Store.Close
func (p *MySQLStore) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.Infof("close mysql counter store %s", p.name)
	return p.db.Close()
}

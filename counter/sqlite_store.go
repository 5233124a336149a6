package counter

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"

	c "github.com/d0ngw/kcounter/common"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a Store backed by SQLite, every increment is one atomic statement
type SQLiteStore struct {
	name   string
	dsn    string
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLiteStore opens (or creates) the SQLite database of dsn and initialises the
// schema. Use ":memory:" for an in-memory database.
func OpenSQLiteStore(name, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite dsn must not be empty")
	}
	if name == "" {
		name = dsn
	}
	var db *sql.DB
	var err error
	if isSQLiteMemory(dsn) {
		if db, err = sql.Open("sqlite", dsn); err == nil {
			// every connection of ":memory:" is a new database
			db.SetMaxOpenConns(1)
		}
	} else if db, err = sql.Open("sqlite", withSQLitePragmas(dsn)); err == nil {
		db.SetMaxOpenConns(sqliteMaxConns)
		db.SetMaxIdleConns(sqliteMaxConns)
	}
	if err != nil {
		return nil, ioError("open sqlite", dsn, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kcounter_entries (
			k   TEXT PRIMARY KEY,
			cnt INTEGER NOT NULL DEFAULT 0 CHECK (cnt >= 0)
		)
	`); err != nil {
		db.Close()
		return nil, ioError("create table", dsn, err)
	}
	c.Infof("open sqlite counter store %s", name)
	return &SQLiteStore{name: name, dsn: dsn, db: db}, nil
}

const sqliteMaxConns = 8

func isSQLiteMemory(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") || strings.Contains(dsn, "mode=memory")
}

// withSQLitePragmas turn on WAL so that lookups don't wait for an increment, writers
// wait for each other up to the busy timeout. A dsn with its own pragmas is kept.
func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Name implements Store.Name
func (p *SQLiteStore) Name() string {
	return p.name
}

// Lookup implements Store.Lookup
func (p *SQLiteStore) Lookup(ctx context.Context, key string) (uint64, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	var count int64
	err := p.db.QueryRowContext(ctx, `SELECT cnt FROM kcounter_entries WHERE k = ?`, key).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, p.wrapErr("lookup", err)
	}
	if count < 0 {
		return 0, corruptError(p.dsn, "negative count %d of %q", count, key)
	}
	return uint64(count), nil
}

// Increment implements Store.Increment
func (p *SQLiteStore) Increment(ctx context.Context, key string) (uint64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	if p.closed.Load() {
		return 0, ErrClosed
	}
	var count int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO kcounter_entries (k, cnt) VALUES (?, 1)
		ON CONFLICT(k) DO UPDATE SET cnt = cnt + 1
		RETURNING cnt
	`, key).Scan(&count)
	if err != nil {
		return 0, p.wrapErr("increment", err)
	}
	return uint64(count), nil
}

// Snapshot implements Store.Snapshot
func (p *SQLiteStore) Snapshot(ctx context.Context) (Fields, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := p.db.QueryContext(ctx, `SELECT k, cnt FROM kcounter_entries ORDER BY k`)
	if err != nil {
		return nil, p.wrapErr("snapshot", err)
	}
	defer rows.Close()

	fields := Fields{}
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, p.wrapErr("snapshot", err)
		}
		if count < 0 {
			return nil, corruptError(p.dsn, "negative count %d of %q", count, key)
		}
		fields[key] = uint64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrapErr("snapshot", err)
	}
	return fields, nil
}

func (p *SQLiteStore) wrapErr(op string, err error) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return ioError(op, p.dsn, err)
}

// Close implements Store.Close
func (p *SQLiteStore) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.Infof("close sqlite counter store %s", p.name)
	return p.db.Close()
}

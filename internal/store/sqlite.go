package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// Open opens (and migrates) the database. For sqlite, source is a file path whose
// parent directory is created if needed; for pgx it is a postgres connection URL.
func Open(driver, source string) (*DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		return openSQLite(source)
	case DriverPgx, "postgres", "postgresql":
		return openPostgres(source)
	default:
		return nil, fmt.Errorf("open db: unsupported driver %q", driver)
	}
}

func openSQLite(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	d := &DB{DB: db, Dialect: SQLite, Source: path}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func openPostgres(url string) (*DB, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("open db: DATABASE_URL is not set")
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)

	d := &DB{DB: db, Dialect: Postgres, Source: url}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Timestamps are stored as unix milliseconds so both dialects compare them the same way.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		namespace  TEXT    NOT NULL,
		key        TEXT    NOT NULL,
		data       TEXT    NOT NULL,
		expires_at INTEGER NOT NULL,
		UNIQUE (namespace, key)
	);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(namespace, expires_at);

	CREATE TABLE IF NOT EXISTS snapshots (
		id         TEXT PRIMARY KEY,
		subreddit  TEXT    NOT NULL,
		snap_date  TEXT    NOT NULL,
		period     TEXT    NOT NULL,
		data       TEXT    NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s','now') AS INTEGER) * 1000),
		UNIQUE (subreddit, snap_date, period)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_sub_date ON snapshots(subreddit, snap_date DESC);

	CREATE TABLE IF NOT EXISTS prompts (
		subreddit TEXT UNIQUE NOT NULL,
		prompt    TEXT        NOT NULL
	);
	`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		namespace  VARCHAR(255) NOT NULL,
		key        TEXT         NOT NULL,
		data       JSONB        NOT NULL,
		expires_at BIGINT       NOT NULL,
		UNIQUE (namespace, key)
	);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(namespace, expires_at);

	CREATE TABLE IF NOT EXISTS snapshots (
		id         VARCHAR(26)  PRIMARY KEY,
		subreddit  VARCHAR(255) NOT NULL,
		snap_date  VARCHAR(10)  NOT NULL,
		period     VARCHAR(20)  NOT NULL,
		data       JSONB        NOT NULL,
		created_at BIGINT       NOT NULL DEFAULT (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT,
		UNIQUE (subreddit, snap_date, period)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_sub_date ON snapshots(subreddit, snap_date DESC);

	CREATE TABLE IF NOT EXISTS prompts (
		subreddit VARCHAR(255) UNIQUE NOT NULL,
		prompt    TEXT                NOT NULL
	);
	`

func (db *DB) migrate() error {
	schema := sqliteSchema
	if db.Dialect == Postgres {
		schema = postgresSchema
	}
	_, err := db.DB.Exec(schema)
	return err
}

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/reddit-digest/internal/store"
)

// SQLBackend stores records in the cache_entries table, keyed by (namespace, key).
type SQLBackend struct {
	db *store.DB
}

// NewSQLBackend wraps an opened database. The caller owns db and closes it.
func NewSQLBackend(db *store.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (s *SQLBackend) Read(ctx context.Context, namespace, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select cache entry: %w", err)
	}
	return data, nil
}

// Write upserts the row in a single statement.
func (s *SQLBackend) Write(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO cache_entries (namespace, key, data, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key)
		 DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		rec.Namespace, rec.ID, string(rec.Data), rec.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *SQLBackend) Delete(ctx context.Context, namespace, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, id)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLBackend) List(ctx context.Context, namespace string) ([]string, error) {
	return s.strings(ctx, `SELECT key FROM cache_entries WHERE namespace = ? ORDER BY key`, namespace)
}

func (s *SQLBackend) Namespaces(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT namespace FROM cache_entries ORDER BY namespace`)
}

func (s *SQLBackend) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLBackend) Close() error { return nil }

var _ Backend = (*SQLBackend)(nil)

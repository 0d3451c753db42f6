// Package sqlite implements kv.Store on a local SQLite file (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vibeshift/dashboard/internal/kv"
)

// Open opens (or creates) a SQLite database at the given path and enables WAL journal mode.
func Open(path string) (*sql.DB, error) {
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

// Store is a SQLite-backed kv.Store. Expiry is stored as unix milliseconds.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens path and returns a Store.
func New(path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Get returns the unexpired value for key or kv.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixMilli()).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return val, nil
}

// Set upserts value under key, expiring it at now+ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, key, value, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Package postgres implements kv.Store on a Postgres table via the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vibeshift/dashboard/internal/kv"
)

const (
	createTableSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	getSQL = `SELECT value FROM cache_entries WHERE key = $1 AND expires_at > $2`

	upsertSQL = `
INSERT INTO cache_entries (key, value, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`

	deleteSQL = `DELETE FROM cache_entries WHERE key = $1`
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates the cache table if it does not exist. Safe to call repeatedly.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createTableSQL)
	return err
}

// Store is a Postgres-backed kv.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewWithDB wraps an open connection.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db, now: time.Now} }

// Get returns the unexpired value for key or kv.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.QueryRowContext(ctx, getSQL, key, s.now().UTC()).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return val, nil
}

// Set upserts value under key, expiring it at now+ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx, upsertSQL, key, value, now.Add(ttl), now); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

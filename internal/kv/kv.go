// Package kv defines the primary (remote, low-latency) cache tier contract.
// Drivers live under internal/kv/<driver>/ (kvrest, postgres, sqlite).
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is a TTL-aware byte store. Values are whole-value replaced on Set.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Closer is implemented by drivers holding connections.
type Closer interface {
	Close() error
}

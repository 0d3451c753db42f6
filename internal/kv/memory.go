package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time

	// Fail, when set, is returned by every operation to simulate an unreachable store.
	Fail error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

// WithClock overrides the clock used for TTL evaluation.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = memoryEntry{value: v, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	delete(m.entries, key)
	return nil
}

// HealthPing implements health.HealthPinger.
func (m *MemoryStore) HealthPing(context.Context) error { return m.Fail }

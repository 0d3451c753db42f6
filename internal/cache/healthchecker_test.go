package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/kv"
)

// plainStore implements kv.Store without HealthPing.
type plainStore struct{ getErr error }

func (p plainStore) Get(context.Context, string) ([]byte, error) { return nil, p.getErr }
func (p plainStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (p plainStore) Delete(context.Context, string) error { return nil }

func TestPrimaryHealthChecker_WithHealthPinger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := kv.NewMemoryStore()
	hc := NewPrimaryHealthChecker(store, zerolog.Nop(), 50*time.Millisecond)
	go hc.Start(ctx, 20*time.Millisecond)
	waitTrue(t, hc.IsHealthy)

	bad := kv.NewMemoryStore()
	bad.Fail = errors.New("down")
	hc2 := NewPrimaryHealthChecker(bad, zerolog.Nop(), 50*time.Millisecond)
	go hc2.Start(ctx, 20*time.Millisecond)
	waitTrue(t, func() bool { return !hc2.IsHealthy() })
}

func TestPrimaryHealthChecker_FallbackRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hc := NewPrimaryHealthChecker(plainStore{getErr: kv.ErrNotFound}, zerolog.Nop(), 50*time.Millisecond)
	go hc.Start(ctx, 20*time.Millisecond)
	waitTrue(t, hc.IsHealthy)

	hc2 := NewPrimaryHealthChecker(plainStore{getErr: errors.New("timeout")}, zerolog.Nop(), 50*time.Millisecond)
	go hc2.Start(ctx, 20*time.Millisecond)
	waitTrue(t, func() bool { return !hc2.IsHealthy() })
}

func TestStaticHealthChecker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hc := NewStaticHealthChecker(NewFileStore(filepath.Join(t.TempDir(), "cache")), zerolog.Nop(), 0)
	go hc.Start(ctx, 20*time.Millisecond)
	waitTrue(t, hc.IsHealthy)
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}

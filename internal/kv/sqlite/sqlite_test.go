package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeshift/dashboard/internal/kv"
)

func TestStore_RoundTripAndExpiry(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	now := time.Date(2025, 9, 18, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "dashboard-data", []byte(`{"v":1}`), 8*time.Hour))
	got, err := s.Get(ctx, "dashboard-data")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))

	require.NoError(t, s.Set(ctx, "dashboard-data", []byte(`{"v":2}`), 8*time.Hour))
	got, err = s.Get(ctx, "dashboard-data")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	now = now.Add(8 * time.Hour)
	_, err = s.Get(ctx, "dashboard-data")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "dashboard-data"))
	assert.NoError(t, s.HealthPing(ctx))
}

func TestStore_MissingKey(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Get(context.Background(), "cohort-events")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

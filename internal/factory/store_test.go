package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeshift/dashboard/internal/config"
	"github.com/vibeshift/dashboard/internal/kv"
)

func TestNewStore_None(t *testing.T) {
	cfg := config.NewForTesting()
	store, err := NewStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestNewStore_SQLite(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.CacheDriver = config.CacheDriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "cache.db")

	store, err := NewStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, store)
	if c, ok := store.(kv.Closer); ok {
		defer c.Close()
	}

	_, err = store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestNewStore_KVRestRequiresURL(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.CacheDriver = config.CacheDriverKVRest
	_, err := NewStore(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewStore_Unknown(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.CacheDriver = "memcached"
	_, err := NewStore(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewPipeline_StaticOnly(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.StaticCacheDir = t.TempDir()

	p, err := NewPipeline(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.Store)
	assert.False(t, p.Cache.HasPrimary())
	assert.Equal(t, cfg.StaticCacheDir, p.Cache.Static().Dir())
	require.NotNil(t, p.Orchestrator)
	require.NotNil(t, p.Jobs)
	assert.Equal(t, p.Week.Window().StartDate(), p.Week.Window().Start.Format("2006-01-02"))
}

func TestNewPipeline_SQLitePrimary(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.CacheDriver = config.CacheDriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "cache.db")
	cfg.StaticCacheDir = t.TempDir()

	p, err := NewPipeline(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.Cache.HasPrimary())
}

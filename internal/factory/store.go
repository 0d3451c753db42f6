package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/config"
	"github.com/vibeshift/dashboard/internal/kv"
	"github.com/vibeshift/dashboard/internal/kv/kvrest"
	kvpg "github.com/vibeshift/dashboard/internal/kv/postgres"
	kvsqlite "github.com/vibeshift/dashboard/internal/kv/sqlite"
)

// NewStore returns the primary cache tier selected by cfg.CacheDriver.
// It returns (nil, nil) for the "none" driver: the hybrid cache then serves from static files only.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (kv.Store, error) {
	switch cfg.CacheDriver {
	case config.CacheDriverNone:
		log.Info().Msg("primary cache tier disabled; serving from static fallback only")
		return nil, nil

	case config.CacheDriverKVRest:
		store, err := kvrest.New(cfg.KVRestURL, cfg.KVRestToken, cfg.FetchTimeout())
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.CacheDriverPostgres:
		// Open synchronously since health checks need it immediately
		db, err := kvpg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}

		// Async bootstrap; don't block startup
		go func() {
			bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := kvpg.Bootstrap(bootstrapCtx, db); err != nil {
				log.Warn().Err(err).Str("driver", cfg.CacheDriver).Msg("cache table bootstrap failed")
			} else {
				log.Debug().Str("driver", cfg.CacheDriver).Msg("cache table bootstrap completed")
			}
		}()
		return kvpg.NewWithDB(db), nil

	case config.CacheDriverSQLite:
		store, err := kvsqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown CACHE_DRIVER: %s", cfg.CacheDriver)
	}
}

// Package cache implements the two-tier dashboard cache: an optional primary key-value
// store with TTLs and a static-file fallback without TTLs.
//
// Reads try the primary tier, then the fallback tier, and report a miss only when both
// fail; tier errors are logged and counted, never returned. Writes are best effort on the
// primary tier and, when requested, also persisted to the fallback tier.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/kv"
	"github.com/vibeshift/dashboard/internal/metrics"
)

// envelope is the primary-tier wire format.
type envelope struct {
	Key       Key             `json:"key"`
	WrittenAt time.Time       `json:"writtenAt"`
	Value     json.RawMessage `json:"value"`
}

// Hybrid is safe for concurrent use. It holds no locks: each write replaces a whole value
// and concurrent writers to one key resolve as last-write-wins in the backing store.
type Hybrid struct {
	primary kv.Store // nil when no primary tier is configured
	static  *FileStore
	ttl     time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewHybrid wires the tiers. primary may be nil.
func NewHybrid(primary kv.Store, static *FileStore, ttl time.Duration, log zerolog.Logger) *Hybrid {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Hybrid{
		primary: primary,
		static:  static,
		ttl:     ttl,
		log:     log.With().Str("component", "cache").Logger(),
		now:     time.Now,
	}
}

// HasPrimary reports whether a primary tier is configured.
func (h *Hybrid) HasPrimary() bool { return h.primary != nil }

// Primary exposes the primary store for health checking.
func (h *Hybrid) Primary() kv.Store { return h.primary }

// Static exposes the fallback store.
func (h *Hybrid) Static() *FileStore { return h.static }

// readPrimary returns the envelope stored under key or one of ErrMiss, ErrUnavailable, ErrCorrupt.
func (h *Hybrid) readPrimary(ctx context.Context, key Key) (envelope, error) {
	if h.primary == nil {
		return envelope{}, ErrUnavailable
	}
	raw, err := h.primary.Get(ctx, string(key))
	if errors.Is(err, kv.ErrNotFound) {
		return envelope{}, ErrMiss
	}
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Value) == 0 || string(env.Value) == "null" {
		return envelope{}, fmt.Errorf("%w: primary %s", ErrCorrupt, key)
	}
	return env, nil
}

// readFallback returns the static file for key as an envelope stamped with its mtime.
func (h *Hybrid) readFallback(key Key) (envelope, error) {
	if h.static == nil {
		return envelope{}, ErrUnavailable
	}
	data, mod, err := h.static.Read(key)
	if err != nil {
		return envelope{}, err
	}
	if !json.Valid(data) {
		return envelope{}, fmt.Errorf("%w: static %s", ErrCorrupt, key)
	}
	return envelope{Key: key, WrittenAt: mod, Value: data}, nil
}

// lookup walks the tiers; decode rejecting a value counts as a corrupt entry for that tier.
func (h *Hybrid) lookup(ctx context.Context, key Key, decode func(json.RawMessage) error) (envelope, Source, bool) {
	env, err := h.readPrimary(ctx, key)
	if err == nil {
		if err = decode(env.Value); err == nil {
			metrics.CacheLookups.WithLabelValues(string(key), string(SourcePrimary)).Inc()
			return env, SourcePrimary, true
		}
		err = fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	h.logTierFailure(key, SourcePrimary, err)

	env, err = h.readFallback(key)
	if err == nil {
		if err = decode(env.Value); err == nil {
			metrics.CacheLookups.WithLabelValues(string(key), string(SourceFallback)).Inc()
			return env, SourceFallback, true
		}
		err = fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	h.logTierFailure(key, SourceFallback, err)

	metrics.CacheLookups.WithLabelValues(string(key), "miss").Inc()
	return envelope{}, "", false
}

func (h *Hybrid) logTierFailure(key Key, tier Source, err error) {
	switch {
	case errors.Is(err, ErrMiss):
		h.log.Debug().Str("key", string(key)).Str("tier", string(tier)).Msg("cache miss")
	case errors.Is(err, ErrUnavailable) && tier == SourcePrimary && h.primary == nil:
		// No primary tier configured; nothing worth logging.
	default:
		h.log.Warn().Err(err).Str("key", string(key)).Str("tier", string(tier)).Msg("cache tier read failed")
	}
}

// Get reads key through both tiers and decodes it into T. ok is false on a complete miss.
func Get[T any](ctx context.Context, h *Hybrid, key Key) (Entry[T], bool) {
	var value T
	env, src, ok := h.lookup(ctx, key, func(raw json.RawMessage) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		value = v
		return nil
	})
	if !ok {
		return Entry[T]{Key: key}, false
	}
	return Entry[T]{Key: key, Value: value, WrittenAt: env.WrittenAt, Source: src}, true
}

// Set writes value to the primary tier (when configured) and, with WriteStatic, to the
// static tier. Failures are logged and reported in the result; they never fail the caller.
func (h *Hybrid) Set(ctx context.Context, key Key, value interface{}, opts SetOptions) WriteResult {
	res := WriteResult{Primary: WriteDisabled, Static: WriteSkipped}

	data, err := json.Marshal(value)
	if err != nil {
		h.log.Error().Stack().Err(err).Str("key", string(key)).Msg("cache value not serializable")
		res.Primary, res.Static = WriteFailed, WriteFailed
		return res
	}

	if h.primary != nil {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = h.ttl
		}
		env, _ := json.Marshal(envelope{Key: key, WrittenAt: h.now().UTC(), Value: data})
		if err := h.primary.Set(ctx, string(key), env, ttl); err != nil {
			h.log.Warn().Err(err).Str("key", string(key)).Msg("primary cache write failed")
			res.Primary = WriteFailed
		} else {
			res.Primary = WriteWritten
		}
		metrics.CacheWrites.WithLabelValues(string(key), "primary", string(res.Primary)).Inc()
	}

	if opts.WriteStatic {
		if h.static == nil {
			res.Static = WriteDisabled
		} else if err := h.static.Write(key, data); err != nil {
			h.log.Warn().Err(err).Str("key", string(key)).Str("path", h.static.Path(key)).Msg("static cache write failed")
			res.Static = WriteFailed
		} else {
			res.Static = WriteWritten
		}
		metrics.CacheWrites.WithLabelValues(string(key), "static", string(res.Static)).Inc()
	}

	h.log.Debug().Str("key", string(key)).Str("primary", string(res.Primary)).Str("static", string(res.Static)).Msg("cache set")
	return res
}

// Delete invalidates key in the primary tier only. Static files are left to be overwritten.
func (h *Hybrid) Delete(ctx context.Context, key Key) error {
	if h.primary == nil {
		return nil
	}
	if err := h.primary.Delete(ctx, string(key)); err != nil {
		h.log.Warn().Err(err).Str("key", string(key)).Msg("primary cache delete failed")
		return err
	}
	return nil
}

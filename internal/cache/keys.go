package cache

import (
	"errors"
	"time"
)

// Key names one cached artifact. The set is fixed.
type Key string

const (
	KeyNewsletter   Key = "newsletter-data"
	KeyMyWeek       Key = "myweek-data"
	KeyDashboard    Key = "dashboard-data"
	KeyCohortEvents Key = "cohort-events"
)

// Keys lists every cache key.
var Keys = []Key{KeyNewsletter, KeyMyWeek, KeyDashboard, KeyCohortEvents}

// ParseKey validates an external key name.
func ParseKey(s string) (Key, bool) {
	for _, k := range Keys {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Source identifies which tier served a value.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
	// SourceFresh is used by callers for values computed during the request.
	SourceFresh Source = "fresh"
)

// Per-tier read outcomes. They never escape Get; callers see (entry, ok).
var (
	ErrMiss        = errors.New("cache: miss")
	ErrUnavailable = errors.New("cache: tier unavailable")
	ErrCorrupt     = errors.New("cache: entry corrupt")
)

// DefaultTTL is the primary-tier TTL when neither the caller nor config sets one.
const DefaultTTL = 8 * time.Hour

// Entry is a typed value read from the cache.
type Entry[T any] struct {
	Key       Key
	Value     T
	WrittenAt time.Time
	Source    Source
}

// SetOptions controls a write.
type SetOptions struct {
	// WriteStatic also persists the value to the static-file tier.
	WriteStatic bool
	// TTL overrides the primary-tier TTL.
	TTL time.Duration
}

// WriteStatus reports the outcome of one tier's write.
type WriteStatus string

const (
	WriteWritten  WriteStatus = "written"
	WriteSkipped  WriteStatus = "skipped"
	WriteFailed   WriteStatus = "failed"
	WriteDisabled WriteStatus = "disabled"
)

// WriteResult summarizes a Set across both tiers.
type WriteResult struct {
	Primary WriteStatus `json:"primary"`
	Static  WriteStatus `json:"static"`
}

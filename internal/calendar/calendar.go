// Package calendar fetches the configured ICS feeds, bounds them to a look-ahead window and a
// per-bucket cap, and partitions the events into cohort and category buckets.
package calendar

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/model"
)

// Bucket names, matching the JSON field names of model.CohortEvents.
const (
	BucketBlue         = "blue"
	BucketGold         = "gold"
	BucketOriginal     = "original"
	BucketLaunch       = "launch"
	BucketCalBears     = "calBears"
	BucketCampusGroups = "campusGroups"
)

// ErrNoFeeds is returned when no feed is configured.
var ErrNoFeeds = errors.New("calendar: no feeds configured")

// PartialError is returned alongside the events of the feeds that succeeded when at least one
// other feed failed. The failed buckets are empty in the result.
type PartialError struct {
	Failed []string
	Cause  error
}

func (e *PartialError) Error() string {
	return "calendar: feeds failed: " + strings.Join(e.Failed, ", ") + ": " + e.Cause.Error()
}

func (e *PartialError) Unwrap() error { return e.Cause }

// Getter fetches a URL body. *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Options bound a fetch.
type Options struct {
	DaysAhead int
	Limit     int
	Location  *time.Location
}

// Fetcher fetches all feeds concurrently.
type Fetcher struct {
	get   Getter
	feeds map[string]string
	opts  Options
	log   zerolog.Logger
}

// NewFetcher returns a Fetcher over feeds (bucket name to ICS URL).
func NewFetcher(get Getter, feeds map[string]string, opts Options, log zerolog.Logger) *Fetcher {
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = 150
	}
	if opts.Limit <= 0 {
		opts.Limit = 150
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Fetcher{get: get, feeds: feeds, opts: opts, log: log.With().Str("component", "calendar").Logger()}
}

type feedResult struct {
	bucket string
	occ    []occurrence
	err    error
}

// Fetch returns events starting in [from, from+DaysAhead). When every feed fails it returns
// empty buckets and an error. When only some fail it returns the surviving buckets together
// with a *PartialError naming the failed ones.
func (f *Fetcher) Fetch(ctx context.Context, from time.Time) (model.CohortEvents, error) {
	if len(f.feeds) == 0 {
		return model.EmptyCohortEvents(), ErrNoFeeds
	}
	to := from.AddDate(0, 0, f.opts.DaysAhead)

	results := make(chan feedResult, len(f.feeds))
	var wg sync.WaitGroup
	for bucket, url := range f.feeds {
		wg.Add(1)
		go func(bucket, url string) {
			defer wg.Done()
			body, err := f.get.Get(ctx, url)
			if err != nil {
				results <- feedResult{bucket: bucket, err: err}
				return
			}
			occ, err := parseFeed(body, bucket, f.opts.Location)
			results <- feedResult{bucket: bucket, occ: occ, err: err}
		}(bucket, url)
	}
	wg.Wait()
	close(results)

	var all []occurrence
	var failed []string
	var lastErr error
	for r := range results {
		if r.err != nil {
			failed = append(failed, r.bucket)
			lastErr = r.err
			f.log.Warn().Err(r.err).Str("bucket", r.bucket).Msg("calendar feed failed")
			continue
		}
		all = append(all, r.occ...)
	}
	if len(failed) == len(f.feeds) {
		return model.EmptyCohortEvents(), errors.Wrap(lastErr, "calendar: all feeds failed")
	}

	events := Partition(window(all, from, to), f.opts.Limit, f.opts.Location)
	f.log.Debug().
		Int("blue", len(events.Blue)).Int("gold", len(events.Gold)).
		Int("feeds_failed", len(failed)).Msg("calendar fetched")
	if len(failed) > 0 {
		sort.Strings(failed)
		return events, &PartialError{Failed: failed, Cause: lastErr}
	}
	return events, nil
}

// window keeps occurrences overlapping [from, to), sorted by start then title.
func window(all []occurrence, from, to time.Time) []occurrence {
	var out []occurrence
	for _, o := range all {
		end := o.end
		if end.IsZero() || !end.After(o.start) {
			end = o.start
			if o.allDay {
				end = o.start.AddDate(0, 0, 1)
			}
		}
		if o.start.Before(to) && (end.After(from) || !o.start.Before(from)) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].start.Equal(out[j].start) {
			return out[i].start.Before(out[j].start)
		}
		return out[i].event.Title < out[j].event.Title
	})
	return out
}

// Partition routes sorted occurrences into buckets and caps each bucket at limit.
// Cohort-tagged events go to their cohort; the rest go to their source's bucket.
func Partition(occ []occurrence, limit int, loc *time.Location) model.CohortEvents {
	out := model.EmptyCohortEvents()
	add := func(dst *[]model.CalendarEvent, o occurrence) {
		if limit > 0 && len(*dst) >= limit {
			return
		}
		*dst = append(*dst, finish(o, loc))
	}
	for _, o := range occ {
		switch {
		case o.event.Cohort == model.CohortBlue:
			add(&out.Blue, o)
		case o.event.Cohort == model.CohortGold:
			add(&out.Gold, o)
		case o.event.Source == BucketLaunch:
			add(&out.Launch, o)
		case o.event.Source == BucketCalBears:
			add(&out.CalBears, o)
		case o.event.Source == BucketCampusGroups:
			add(&out.CampusGroups, o)
		default:
			add(&out.Original, o)
		}
	}
	return out
}

// finish renders start/end: all-day events as dates, timed events as RFC 3339 in loc.
func finish(o occurrence, loc *time.Location) model.CalendarEvent {
	e := o.event
	if o.allDay {
		e.Start = o.start.Format(time.DateOnly)
		if !o.end.IsZero() && o.end.After(o.start) {
			e.End = o.end.Format(time.DateOnly)
		}
		return e
	}
	e.Start = o.start.In(loc).Format(time.RFC3339)
	if !o.end.IsZero() {
		e.End = o.end.In(loc).Format(time.RFC3339)
	}
	return e
}

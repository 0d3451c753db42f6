package dashboard

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeshift/dashboard/internal/ai"
	"github.com/vibeshift/dashboard/internal/cache"
	"github.com/vibeshift/dashboard/internal/calendar"
	"github.com/vibeshift/dashboard/internal/kv"
	"github.com/vibeshift/dashboard/internal/model"
	"github.com/vibeshift/dashboard/internal/myweek"
	"github.com/vibeshift/dashboard/internal/newsletter"
)

type stubNews struct {
	issue newsletter.Issue
	err   error
	calls atomic.Int32
}

func (s *stubNews) Latest(context.Context) (newsletter.Issue, error) {
	s.calls.Add(1)
	return s.issue, s.err
}

type reorganizeFunc func(raw []model.RawSection, url, title string) (model.NewsletterPayload, error)

func (f reorganizeFunc) Reorganize(_ context.Context, raw []model.RawSection, url, title string) (model.NewsletterPayload, error) {
	return f(raw, url, title)
}

type stubCalendar struct {
	events model.CohortEvents
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (s *stubCalendar) Fetch(ctx context.Context, _ time.Time) (model.CohortEvents, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.CohortEvents{}, ctx.Err()
		}
	}
	return s.events, s.err
}

// quietSummarizer returns no events of its own; newsletter items are merged in by the synthesizer.
type quietSummarizer struct{}

func (quietSummarizer) SummarizeWeek(_ context.Context, in ai.WeekInput) (ai.WeekSummary, error) {
	return ai.WeekSummary{Summary: "Summary for " + string(in.Cohort)}, nil
}

var problemSetIssue = newsletter.Issue{
	URL:   "https://news.example/issue-42",
	Title: "Week 4",
	Sections: []model.RawSection{
		{Title: "Deadlines", HTML: "<h3>Problem Set 3</h3><p>Due Sep 21</p>"},
	},
}

// taggingReorganizer files the single scraped item under "Deadlines" as a high-priority deadline.
var taggingReorganizer = reorganizeFunc(func(raw []model.RawSection, url, title string) (model.NewsletterPayload, error) {
	return model.NewsletterPayload{
		SourceURL: url,
		Title:     title,
		Sections: []model.Section{{
			SectionTitle: "Deadlines",
			Items: []model.Item{{
				Title: "Problem Set 3",
				HTML:  "<p>Due Sep 21</p>",
				TimeSensitive: &model.TimeSensitive{
					Dates: []string{"2025-09-21"}, EventType: model.EventTypeDeadline, Priority: model.PriorityHigh,
				},
			}},
		}},
		Debug: &model.OrganizerDebug{Model: "primary-model", ModelsTried: []string{"primary-model"}, TotalSections: 1},
	}, nil
})

var failingReorganizer = reorganizeFunc(func([]model.RawSection, string, string) (model.NewsletterPayload, error) {
	return model.NewsletterPayload{}, &ai.ExhaustedError{CallSite: ai.CallSiteReorganize, Attempts: []ai.Attempt{{Model: "primary-model", Error: "timeout"}}}
})

type fixture struct {
	orch  *Orchestrator
	cache *cache.Hybrid
	store *kv.MemoryStore
	news  *stubNews
	cal   *stubCalendar
}

func newFixture(t *testing.T, reorg Reorganizer) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	today := time.Date(2025, 9, 18, 10, 0, 0, 0, loc)

	store := kv.NewMemoryStore()
	h := cache.NewHybrid(store, cache.NewFileStore(filepath.Join(t.TempDir(), "cache")), 0, zerolog.Nop())

	blue := []model.CalendarEvent{{Title: "Finance", Start: "2025-09-16T09:00:00-07:00", Cohort: model.CohortBlue}}
	events := model.EmptyCohortEvents()
	events.Blue = blue

	f := &fixture{
		cache: h,
		store: store,
		news:  &stubNews{issue: problemSetIssue},
		cal:   &stubCalendar{events: events},
	}
	week := myweek.NewSynthesizer(quietSummarizer{}, loc, zerolog.Nop()).WithClock(func() time.Time { return today })
	f.orch = New(Deps{Cache: h, Newsletter: f.news, Reorganizer: reorg, Calendar: f.cal, Week: week}, 5*time.Second, zerolog.Nop())
	return f
}

func TestGetDashboard_EndToEndProblemSet(t *testing.T) {
	f := newFixture(t, taggingReorganizer)

	data, src, err := f.orch.GetDashboard(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceFresh, src)

	require.Len(t, data.NewsletterData.Sections, 1)
	assert.Equal(t, "Deadlines", data.NewsletterData.Sections[0].SectionTitle)

	assert.Equal(t, "2025-09-14", data.MyWeekData.WeekStart)
	assert.Equal(t, "2025-09-21", data.MyWeekData.WeekEnd)
	var found bool
	for _, e := range data.MyWeekData.BlueEvents {
		if e.Title == "Problem Set 3" {
			found = true
			assert.Equal(t, "2025-09-21", e.Date)
			assert.Equal(t, model.WeekEventNewsletter, e.Type)
		}
	}
	assert.True(t, found, "Problem Set 3 must appear in the blue week")
	assert.Equal(t, "Summary for blue", data.MyWeekData.BlueSummary)

	assert.Len(t, data.CohortEvents.Blue, 1)
	assert.NotEmpty(t, data.ProcessingInfo.Timestamp)
	assert.NotEmpty(t, data.ProcessingInfo.RunID)
	assert.GreaterOrEqual(t, data.ProcessingInfo.TotalTime, data.ProcessingInfo.MyWeekTime)

	// A second call is served from the primary tier without re-running the pipeline.
	again, src, err := f.orch.GetDashboard(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, cache.SourcePrimary, src)
	assert.Equal(t, data.ProcessingInfo.Timestamp, again.ProcessingInfo.Timestamp)
	assert.Equal(t, int32(1), f.news.calls.Load())
}

func TestGetDashboard_ReorganizerFailureServesCatchAllSection(t *testing.T) {
	f := newFixture(t, failingReorganizer)

	data, _, err := f.orch.GetDashboard(context.Background(), false)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(data.NewsletterData.Sections), 1)
	assert.Equal(t, problemSetIssue.Sections[0].HTML, data.NewsletterData.Sections[0].Items[0].HTML)
	require.NotNil(t, data.NewsletterData.Debug)
	assert.True(t, data.NewsletterData.Debug.Fallback)
	assert.Equal(t, []string{"primary-model"}, data.NewsletterData.Debug.ModelsTried)

	_, ok := cache.Get[model.NewsletterPayload](context.Background(), f.cache, cache.KeyNewsletter)
	assert.False(t, ok, "degraded newsletter is not cached")
	_, ok = cache.Get[model.UnifiedDashboardData](context.Background(), f.cache, cache.KeyDashboard)
	assert.False(t, ok)
}

func TestGetDashboard_CalendarFailureRendersEmptyBuckets(t *testing.T) {
	noDates := reorganizeFunc(func(raw []model.RawSection, url, title string) (model.NewsletterPayload, error) {
		return ai.Unorganized(raw, url, title, nil), nil
	})
	f := newFixture(t, noDates)
	f.cal.err = errors.New("ics feed unreachable")

	data, _, err := f.orch.GetDashboard(context.Background(), false)
	require.NoError(t, err)

	assert.NotNil(t, data.CohortEvents.Blue)
	assert.Empty(t, data.CohortEvents.Blue)
	assert.NotNil(t, data.CohortEvents.Gold)
	assert.Empty(t, data.CohortEvents.Gold)
	assert.Equal(t, myweek.NoEventsSummary(model.CohortBlue), data.MyWeekData.BlueSummary)
	assert.Equal(t, myweek.NoEventsSummary(model.CohortGold), data.MyWeekData.GoldSummary)

	_, ok := cache.Get[model.CohortEvents](context.Background(), f.cache, cache.KeyCohortEvents)
	assert.False(t, ok)
}

func partialCalendar(f *fixture) {
	events := model.EmptyCohortEvents()
	events.Gold = []model.CalendarEvent{{Title: "Gold lab", Start: "2025-09-17T13:00:00-07:00", Cohort: model.CohortGold}}
	f.cal.events = events
	f.cal.err = &calendar.PartialError{Failed: []string{calendar.BucketBlue}, Cause: errors.New("unreachable blue.ics")}
}

func TestRun_PartialCalendarIsDegradedAndNotCached(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	partialCalendar(f)
	ctx := context.Background()

	res, err := f.orch.Run(ctx, RunOptions{WriteStatic: true})
	require.NoError(t, err)

	assert.Contains(t, res.Degraded, "calendar-partial")
	assert.Len(t, res.Data.CohortEvents.Gold, 1, "surviving buckets are still served")
	assert.Empty(t, res.Data.CohortEvents.Blue)

	for _, key := range []cache.Key{cache.KeyCohortEvents, cache.KeyMyWeek, cache.KeyDashboard} {
		assert.NotContains(t, res.Writes, key)
	}
	_, ok := cache.Get[model.CohortEvents](ctx, f.cache, cache.KeyCohortEvents)
	assert.False(t, ok)
	_, ok = cache.Get[model.CohortMyWeekAnalysis](ctx, f.cache, cache.KeyMyWeek)
	assert.False(t, ok)
	_, ok = cache.Get[model.UnifiedDashboardData](ctx, f.cache, cache.KeyDashboard)
	assert.False(t, ok)

	// The newsletter itself was fresh and is still cached.
	_, ok = cache.Get[model.NewsletterPayload](ctx, f.cache, cache.KeyNewsletter)
	assert.True(t, ok)
}

func TestCohortEvents_PartialFetchIsServedButNotCached(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	partialCalendar(f)
	ctx := context.Background()

	ev, src, err := f.orch.CohortEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceFresh, src)
	assert.Len(t, ev.Gold, 1)

	_, src, err = f.orch.CohortEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceFresh, src)
	assert.Equal(t, int32(2), f.cal.calls.Load())
}

func TestGetDashboard_ForceRefreshRunsPipelineEachTime(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	ctx := context.Background()

	first, src, err := f.orch.GetDashboard(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceFresh, src)

	second, src, err := f.orch.GetDashboard(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceFresh, src)

	assert.NotEqual(t, first.ProcessingInfo.Timestamp, second.ProcessingInfo.Timestamp)
	assert.NotEqual(t, first.ProcessingInfo.RunID, second.ProcessingInfo.RunID)
	assert.Equal(t, int32(2), f.news.calls.Load())
	assert.Equal(t, int32(2), f.cal.calls.Load())

	cached, ok := cache.Get[model.UnifiedDashboardData](ctx, f.cache, cache.KeyDashboard)
	require.True(t, ok)
	assert.Equal(t, second.ProcessingInfo.Timestamp, cached.Value.ProcessingInfo.Timestamp)
}

func TestGetDashboard_UserRequestsNeverWriteStatic(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	_, _, err := f.orch.GetDashboard(context.Background(), true)
	require.NoError(t, err)

	_, _, err = f.cache.Static().Read(cache.KeyDashboard)
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestRun_ScrapeFailureUsesCachedNewsletter(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	ctx := context.Background()
	f.cache.Set(ctx, cache.KeyNewsletter, model.NewsletterPayload{
		SourceURL: "https://news.example/issue-41",
		Sections:  []model.Section{{SectionTitle: "Old news", Items: []model.Item{{Title: "x", HTML: "<p>x</p>"}}}},
	}, cache.SetOptions{})
	f.news.err = errors.New("archive returned 503")
	f.cal.delay = 50 * time.Millisecond

	res, err := f.orch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cache", res.NewsletterSource)
	assert.Equal(t, "Old news", res.Data.NewsletterData.Sections[0].SectionTitle)
	assert.Contains(t, res.Degraded, "newsletter")
	assert.Len(t, res.Data.CohortEvents.Blue, 1, "calendar stage settles even though the newsletter stage failed first")
	assert.GreaterOrEqual(t, res.Data.ProcessingInfo.CalendarTime, int64(50))
}

func TestRun_ScrapeFailureWithoutCacheIsUnrecoverable(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	f.news.err = errors.New("archive returned 503")

	_, err := f.orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnrecoverable)

	_, _, err = f.orch.GetDashboard(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnrecoverable)
}

func TestRun_SkipNewsletterWritesStatic(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	ctx := context.Background()
	f.cache.Set(ctx, cache.KeyNewsletter, model.NewsletterPayload{SourceURL: "cached", Sections: []model.Section{}}, cache.SetOptions{})

	res, err := f.orch.Run(ctx, RunOptions{WriteStatic: true, SkipNewsletter: true})
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.news.calls.Load())
	assert.Equal(t, "skipped", res.NewsletterSource)
	assert.Equal(t, "cached", res.Data.NewsletterData.SourceURL)
	assert.Equal(t, myweek.NoEventsSummary(model.CohortGold), res.Data.MyWeekData.GoldSummary)

	for _, k := range []cache.Key{cache.KeyMyWeek, cache.KeyCohortEvents, cache.KeyDashboard} {
		require.Contains(t, res.Writes, k)
		assert.Equal(t, cache.WriteWritten, res.Writes[k].Static, "key %s", k)
	}
	assert.NotContains(t, res.Writes, cache.KeyNewsletter)
}

func TestGetDashboard_ComposesFromCachedParts(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	ctx := context.Background()
	f.store.Fail = errors.New("primary down")

	fs := f.cache.Static()
	require.NoError(t, fs.Write(cache.KeyNewsletter, []byte(`{"sourceUrl":"s","sections":[]}`)))
	require.NoError(t, fs.Write(cache.KeyMyWeek, []byte(`{"weekStart":"2025-09-14","weekEnd":"2025-09-21","blueEvents":[],"goldEvents":[],"blueSummary":"b","goldSummary":"g"}`)))
	require.NoError(t, fs.Write(cache.KeyCohortEvents, []byte(`{"blue":[],"gold":[]}`)))

	data, src, err := f.orch.GetDashboard(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceFallback, src)
	assert.Equal(t, "b", data.MyWeekData.BlueSummary)
	assert.NotNil(t, data.CohortEvents.CampusGroups)
	assert.Equal(t, int32(0), f.news.calls.Load())
}

func TestGetDashboard_StaleWeekIsNotComposed(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	fs := f.cache.Static()
	require.NoError(t, fs.Write(cache.KeyNewsletter, []byte(`{"sourceUrl":"s","sections":[]}`)))
	require.NoError(t, fs.Write(cache.KeyMyWeek, []byte(`{"weekStart":"2025-09-07","weekEnd":"2025-09-14"}`)))
	require.NoError(t, fs.Write(cache.KeyCohortEvents, []byte(`{"blue":[],"gold":[]}`)))

	_, src, err := f.orch.GetDashboard(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceFresh, src)
	assert.Equal(t, int32(1), f.news.calls.Load())
}

func TestCohortEvents_FetchesOnMissThenCaches(t *testing.T) {
	f := newFixture(t, taggingReorganizer)
	ctx := context.Background()

	ev, src, err := f.orch.CohortEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceFresh, src)
	assert.Len(t, ev.Blue, 1)

	_, src, err = f.orch.CohortEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.SourcePrimary, src)
	assert.Equal(t, int32(1), f.cal.calls.Load())
}

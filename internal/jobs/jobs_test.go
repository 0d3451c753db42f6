package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeshift/dashboard/internal/cache"
	"github.com/vibeshift/dashboard/internal/dashboard"
	"github.com/vibeshift/dashboard/internal/model"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []dashboard.RunOptions
	res   dashboard.RunResult
	err   error
}

func (r *recordingRunner) Run(_ context.Context, opts dashboard.RunOptions) (dashboard.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	return r.res, r.err
}

func okResult(skipped bool) dashboard.RunResult {
	src := "fresh"
	if skipped {
		src = "skipped"
	}
	return dashboard.RunResult{
		Data: model.UnifiedDashboardData{
			NewsletterData: model.NewsletterPayload{Sections: []model.Section{{SectionTitle: "Deadlines"}}},
			MyWeekData: model.CohortMyWeekAnalysis{
				WeekStart:  "2025-09-14",
				BlueEvents: []model.WeekEvent{{Date: "2025-09-21", Title: "Problem Set 3"}},
				GoldEvents: []model.WeekEvent{},
			},
			ProcessingInfo: model.ProcessingInfo{RunID: "run-1", TotalTime: 1200},
		},
		Writes: map[cache.Key]cache.WriteResult{
			cache.KeyMyWeek: {Primary: cache.WriteWritten, Static: cache.WriteWritten},
		},
		NewsletterSource: src,
	}
}

func TestNewsletterRefresh_WritesStaticAndRunsAllStages(t *testing.T) {
	r := &recordingRunner{res: okResult(false)}
	j := New(r, zerolog.Nop())

	sum := j.NewsletterRefresh(context.Background())

	require.Len(t, r.calls, 1)
	assert.Equal(t, dashboard.RunOptions{WriteStatic: true}, r.calls[0])
	assert.True(t, sum.Success)
	assert.Equal(t, NameNewsletterRefresh, sum.Job)
	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 1, sum.Sections)
	assert.Equal(t, 1, sum.BlueEvents)
	assert.Equal(t, 0, sum.GoldEvents)
	assert.NotEmpty(t, sum.Timestamp)
	assert.Empty(t, sum.Error)
}

func TestCacheRefresh_SkipsNewsletter(t *testing.T) {
	r := &recordingRunner{res: okResult(true)}
	j := New(r, zerolog.Nop())

	sum := j.CacheRefresh(context.Background())

	require.Len(t, r.calls, 1)
	assert.Equal(t, dashboard.RunOptions{WriteStatic: true, SkipNewsletter: true}, r.calls[0])
	assert.True(t, sum.Success)
	assert.Equal(t, "skipped", sum.NewsletterSource)
	assert.Equal(t, "Calendar and weekly summaries refreshed", sum.Message)
}

func TestRefresh_FailureIsReported(t *testing.T) {
	r := &recordingRunner{err: dashboard.ErrUnrecoverable}
	j := New(r, zerolog.Nop())

	sum := j.NewsletterRefresh(context.Background())
	assert.False(t, sum.Success)
	assert.Equal(t, "Refresh failed", sum.Message)
	assert.Contains(t, sum.Error, "newsletter unavailable")
	assert.Nil(t, sum.ProcessingInfo)
}

func TestRefresh_DegradedStillSucceeds(t *testing.T) {
	res := okResult(false)
	res.Degraded = []string{"calendar"}
	j := New(&recordingRunner{res: res}, zerolog.Nop())

	sum := j.NewsletterRefresh(context.Background())
	assert.True(t, sum.Success)
	assert.Equal(t, []string{"calendar"}, sum.Degraded)

	body, err := json.Marshal(sum)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	for _, k := range []string{"success", "message", "timestamp", "writes", "processingInfo"} {
		assert.Contains(t, decoded, k)
	}
}

func TestTrigger_UnknownJob(t *testing.T) {
	r := &recordingRunner{}
	_, err := New(r, zerolog.Nop()).Trigger(context.Background(), "refresh-everything")
	assert.True(t, errors.Is(err, ErrUnknownJob))
	assert.Empty(t, r.calls)
}

func TestNextRun(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	before := time.Date(2025, 9, 18, 7, 59, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 9, 18, 8, 0, 0, 0, loc), NextRun(before, 8, 0, loc))

	exactly := time.Date(2025, 9, 18, 8, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 9, 19, 8, 0, 0, 0, loc), NextRun(exactly, 8, 0, loc))

	// Evaluated in loc even when now carries another zone: 06:30 UTC is 23:30 the previous day in LA.
	utc := time.Date(2025, 9, 19, 6, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 9, 19, 0, 0, 0, 0, loc), NextRun(utc, 0, 0, loc))

	// Across the DST change the wall-clock time is kept.
	dst := time.Date(2025, 11, 1, 9, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 11, 2, 8, 0, 0, 0, loc), NextRun(dst, 8, 0, loc))
}

func TestScheduler_FiresOncePerDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	r := &recordingRunner{res: okResult(false)}
	start := time.Date(2025, 9, 18, 7, 0, 0, 0, loc)
	s := NewScheduler(New(r, zerolog.Nop()), []Entry{
		{Job: NameNewsletterRefresh, Hour: 8},
		{Job: NameCacheRefresh, Hour: 0},
	}, SchedulerConfig{Location: loc}, zerolog.Nop()).WithClock(func() time.Time { return start })

	ctx := context.Background()
	assert.Empty(t, s.tick(ctx, time.Date(2025, 9, 18, 7, 59, 30, 0, loc)))

	fired := s.tick(ctx, time.Date(2025, 9, 18, 8, 0, 10, 0, loc))
	require.Len(t, fired, 1)
	assert.Equal(t, NameNewsletterRefresh, fired[0].Job)

	assert.Empty(t, s.tick(ctx, time.Date(2025, 9, 18, 8, 0, 40, 0, loc)))

	fired = s.tick(ctx, time.Date(2025, 9, 19, 0, 0, 5, 0, loc))
	require.Len(t, fired, 1)
	assert.Equal(t, NameCacheRefresh, fired[0].Job)

	fired = s.tick(ctx, time.Date(2025, 9, 19, 8, 1, 0, 0, loc))
	require.Len(t, fired, 1)
	assert.Equal(t, NameNewsletterRefresh, fired[0].Job)

	require.Len(t, r.calls, 3)
	assert.True(t, r.calls[1].SkipNewsletter)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s := NewScheduler(New(&recordingRunner{}, zerolog.Nop()), nil, SchedulerConfig{Interval: time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
}

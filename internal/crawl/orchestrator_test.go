package crawl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/checkpoint"
	"github.com/showwatch/showwatch/internal/fetcher"
	"github.com/showwatch/showwatch/internal/kv/memory"
	"github.com/showwatch/showwatch/internal/show"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeDiscoverer struct {
	dates []string
	err   error
	calls int
}

func (d *fakeDiscoverer) Discover(_ context.Context, _ string) ([]string, error) {
	d.calls++
	return d.dates, d.err
}

func (d *fakeDiscoverer) DayURL(day string) string {
	return "https://venue.example/programm/" + day
}

// fakeBudget mimics the budgeted fetcher: canned bodies behind a request
// ceiling and a restorable counter.
type fakeBudget struct {
	mu     sync.Mutex
	bodies map[string][]byte
	max    int
	count  int
}

func (f *fakeBudget) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count >= f.max {
		return nil, fetcher.ErrBudgetExceeded
	}
	f.count++
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("status 404")
	}
	return body, nil
}

func (f *fakeBudget) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeBudget) RestoreRequestCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = n
}

func (f *fakeBudget) BudgetRemaining() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count < f.max
}

// stubExtractor yields one record per page, titled after the body.
type stubExtractor struct{}

func (stubExtractor) HasNoEventsMarker(body []byte) bool { return string(body) == "empty" }

func (stubExtractor) ScanEventURLs(body []byte) []string {
	return []string{"https://venue.example/event/" + string(body)}
}

func (stubExtractor) Extract(body []byte, day time.Time) []show.Show {
	s := show.Show{
		Title:     string(body),
		SourceURL: "https://venue.example/event/" + string(body),
		OccursAt:  day.Add(20 * time.Hour),
	}
	s.Finalize()
	return []show.Show{s}
}

func dayBody(day string) (string, []byte) {
	return "https://venue.example/programm/" + day, []byte("show-" + day)
}

func newCheckpoint(clock show.Clock) *checkpoint.Store {
	return checkpoint.New(memory.New(clock), 24*time.Hour, clock, zap.NewNop())
}

func TestRunFreshCrawlCompletes(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	cp := newCheckpoint(clock)
	d := &fakeDiscoverer{dates: []string{"2025-06-01", "2025-06-02"}}
	bodies := make(map[string][]byte)
	for _, day := range d.dates {
		u, b := dayBody(day)
		bodies[u] = b
	}
	f := &fakeBudget{bodies: bodies, max: 100}
	o := New(Config{ChunkSize: 10}, d, f, stubExtractor{}, cp, clock, zap.NewNop())

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Len(t, res.Shows, 2)
	require.Zero(t, res.PendingDates)
	require.Nil(t, cp.Load(context.Background()), "completed crawl leaves no checkpoint")
}

func TestRunChunksAcrossInvocations(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	cp := newCheckpoint(clock)
	d := &fakeDiscoverer{dates: []string{"2025-06-01", "2025-06-02", "2025-06-03"}}
	bodies := make(map[string][]byte)
	for _, day := range d.dates {
		u, b := dayBody(day)
		bodies[u] = b
	}
	f := &fakeBudget{bodies: bodies, max: 100}
	o := New(Config{ChunkSize: 1}, d, f, stubExtractor{}, cp, clock, zap.NewNop())

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Complete)
	require.Len(t, res.Shows, 1)
	require.Equal(t, 2, res.PendingDates)

	res, err = o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Complete)
	require.Len(t, res.Shows, 2, "records carry over between invocations")

	res, err = o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Len(t, res.Shows, 3)
	require.Equal(t, 1, d.calls, "discovery happens once per logical crawl")
}

func TestRunResumesAfterBudgetExhaustion(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	cp := newCheckpoint(clock)
	d := &fakeDiscoverer{dates: []string{"2025-06-01", "2025-06-02"}}
	bodies := make(map[string][]byte)
	for _, day := range d.dates {
		u, b := dayBody(day)
		bodies[u] = b
	}

	tight := &fakeBudget{bodies: bodies, max: 1}
	o := New(Config{ChunkSize: 10}, d, tight, stubExtractor{}, cp, clock, zap.NewNop())
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Complete)
	require.Len(t, res.Shows, 1, "the job before the budget wall still lands")

	// A later invocation with a raised ceiling resumes the same crawl; the
	// restored counter keeps the ceiling spanning the whole logical crawl.
	roomy := &fakeBudget{bodies: bodies, max: 10}
	o = New(Config{ChunkSize: 10}, d, roomy, stubExtractor{}, cp, clock, zap.NewNop())
	res, err = o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Len(t, res.Shows, 2)
	require.Equal(t, 2, roomy.RequestCount())
	require.Equal(t, 1, d.calls, "resume must not re-discover")
}

func TestRunSkipsWhenRunwayTooShort(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Now()}
	cp := newCheckpoint(clock)
	d := &fakeDiscoverer{dates: []string{"2025-06-01"}}
	f := &fakeBudget{max: 100}
	o := New(Config{ChunkSize: 10, MinRunway: time.Hour}, d, f, stubExtractor{}, cp, clock, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := o.Run(ctx)
	require.NoError(t, err)
	require.False(t, res.Complete)
	require.Empty(t, res.Shows)
	require.Zero(t, d.calls, "a skipped invocation does no work at all")
}

func TestRunPropagatesDiscoveryError(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	cp := newCheckpoint(clock)
	d := &fakeDiscoverer{err: errors.New("status 503")}
	f := &fakeBudget{max: 100}
	o := New(Config{ChunkSize: 10}, d, f, stubExtractor{}, cp, clock, zap.NewNop())

	_, err := o.Run(context.Background())
	require.Error(t, err)
}

func TestRunFailedDayCountsAsProcessed(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	cp := newCheckpoint(clock)
	d := &fakeDiscoverer{dates: []string{"2025-06-01", "2025-06-02"}}
	u, b := dayBody("2025-06-02")
	// 2025-06-01 has no canned body and fails with a non-budget error.
	f := &fakeBudget{bodies: map[string][]byte{u: b}, max: 100}
	o := New(Config{ChunkSize: 10}, d, f, stubExtractor{}, cp, clock, zap.NewNop())

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Complete, "a permanently failing day must not wedge the crawl")
	require.Len(t, res.Shows, 1)
}

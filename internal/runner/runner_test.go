package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/crawl"
	"github.com/showwatch/showwatch/internal/delivery"
	"github.com/showwatch/showwatch/internal/show"
)

type fakeCrawler struct {
	mu     sync.Mutex
	result crawl.Result
	err    error
	calls  int
	block  chan struct{}
}

func (c *fakeCrawler) Run(ctx context.Context) (crawl.Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return crawl.Result{}, ctx.Err()
		}
	}
	return c.result, c.err
}

func (c *fakeCrawler) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeDeliverer struct {
	mu      sync.Mutex
	batches [][]show.Show
	err     error
}

func (d *fakeDeliverer) Deliver(_ context.Context, records []show.Show) (delivery.Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, records)
	if d.err != nil {
		return delivery.Summary{}, d.err
	}
	return delivery.Summary{New: len(records)}, nil
}

func (d *fakeDeliverer) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func TestRunOnceCrawlsThenDelivers(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{result: crawl.Result{
		Shows:    []show.Show{{ID: "aaaa", Title: "Premiere"}},
		Complete: true,
	}}
	d := &fakeDeliverer{}
	r := New(Config{Schedule: "@hourly"}, c, d, zap.NewNop())

	require.NoError(t, r.RunOnce(context.Background()))
	require.Equal(t, 1, c.callCount())
	require.Equal(t, 1, d.batchCount())
}

func TestRunOnceSkipsDeliveryWithoutResults(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{result: crawl.Result{PendingDates: 3}}
	d := &fakeDeliverer{}
	r := New(Config{Schedule: "@hourly"}, c, d, zap.NewNop())

	require.NoError(t, r.RunOnce(context.Background()))
	require.Zero(t, d.batchCount())
}

func TestRunOncePropagatesCrawlError(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{err: errors.New("status 503")}
	r := New(Config{Schedule: "@hourly"}, c, &fakeDeliverer{}, zap.NewNop())

	require.Error(t, r.RunOnce(context.Background()))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	r := New(Config{Schedule: "not a cron spec"}, &fakeCrawler{}, &fakeDeliverer{}, zap.NewNop())
	require.Error(t, r.Start(context.Background()))
}

func TestRunOnStartTriggersImmediatePass(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{result: crawl.Result{Complete: true}}
	d := &fakeDeliverer{}
	r := New(Config{Schedule: "@daily", RunOnStart: true}, c, d, zap.NewNop())

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool { return c.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestStopWaitsForRunningPass(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	c := &fakeCrawler{block: block}
	r := New(Config{Schedule: "@daily", RunOnStart: true}, c, &fakeDeliverer{}, zap.NewNop())

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return c.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Stop returned while a pass was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the pass finished")
	}
}

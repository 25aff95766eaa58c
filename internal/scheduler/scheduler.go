// Package scheduler runs scrape-one-day jobs under a concurrency bound and
// a wall-clock deadline. It is best-effort and at-most-once per invocation:
// a job either completes here or stays pending for a future invocation to
// pick up from the checkpoint.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/fetcher"
	"github.com/showwatch/showwatch/internal/metrics"
	"github.com/showwatch/showwatch/internal/show"
)

// Extractor is the slice of the extraction surface the scheduler needs.
type Extractor interface {
	HasNoEventsMarker(body []byte) bool
	ScanEventURLs(body []byte) []string
	Extract(body []byte, day time.Time) []show.Show
}

// SeenIndex answers whether a candidate key was already delivered. A nil
// index disables the skip fast path.
type SeenIndex interface {
	HasSeen(ctx context.Context, id string) bool
}

// Config controls scheduling.
type Config struct {
	// MaxConcurrent bounds in-flight jobs; the venue tolerates only a
	// couple of parallel connections, so this is typically 1 or 2.
	MaxConcurrent int
}

// Scheduler owns the job queue, the in-flight set, and the results
// accumulator for one invocation.
type Scheduler struct {
	fetcher   fetcher.Fetcher
	extractor Extractor
	seen      SeenIndex
	cfg       Config
	logger    *zap.Logger

	mu        sync.Mutex
	queue     []show.Job
	inflight  map[string]show.Job
	results   []show.Show
	budgetHit bool
}

// New builds a Scheduler.
func New(f fetcher.Fetcher, e Extractor, seen SeenIndex, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		fetcher:   f,
		extractor: e,
		seen:      seen,
		cfg:       cfg,
		logger:    logger,
		inflight:  make(map[string]show.Job),
	}
}

func jobKey(j show.Job) string { return j.Day + "|" + j.URL }

// Add enqueues a job. Jobs already queued or running are ignored, so merging
// checkpointed pending jobs with freshly selected dates cannot double-scrape
// a day.
func (s *Scheduler) Add(job show.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobKey(job)
	if _, running := s.inflight[key]; running {
		return
	}
	for _, queued := range s.queue {
		if jobKey(queued) == key {
			return
		}
	}
	s.queue = append(s.queue, job)
}

// WaitForCompletion launches queued jobs, at most MaxConcurrent at a time,
// and blocks until the queue drains or ctx expires, whichever comes first.
// On expiry it returns whatever accumulated; undrained and interrupted jobs
// stay retrievable via PendingJobs for checkpointing. Once the fetch budget
// is exhausted no further jobs launch, but in-flight ones finish.
func (s *Scheduler) WaitForCompletion(ctx context.Context) []show.Show {
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.MaxConcurrent)

launch:
	for {
		if ctx.Err() != nil {
			break
		}
		job, ok := s.take()
		if !ok {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Took the job but never started it.
			s.requeue(job)
			break launch
		}
		wg.Add(1)
		go func(j show.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			s.run(ctx, j)
		}(job)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// In-flight fetches are not cooperatively cancelable; they are
		// simply no longer waited on. Their eventual results are discarded
		// because run refuses to commit after the deadline.
		s.logger.Info("deadline reached, abandoning in-flight jobs",
			zap.Int("pending", len(s.PendingJobs())),
		)
	}
	return s.Results()
}

// PendingJobs returns the jobs that did not complete in this invocation:
// never launched, interrupted by the deadline, or bounced off the budget.
func (s *Scheduler) PendingJobs() []show.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]show.Job, 0, len(s.queue)+len(s.inflight))
	pending = append(pending, s.queue...)
	for _, j := range s.inflight {
		pending = append(pending, j)
	}
	sort.Slice(pending, func(a, b int) bool {
		return jobKey(pending[a]) < jobKey(pending[b])
	})
	return pending
}

// Results returns a copy of the accumulated records.
func (s *Scheduler) Results() []show.Show {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]show.Show, len(s.results))
	copy(out, s.results)
	return out
}

func (s *Scheduler) take() (show.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budgetHit || len(s.queue) == 0 {
		return show.Job{}, false
	}
	job := s.queue[0]
	s.queue = s.queue[1:]
	s.inflight[jobKey(job)] = job
	return job, true
}

func (s *Scheduler) requeue(job show.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, jobKey(job))
	s.queue = append([]show.Job{job}, s.queue...)
}

// complete commits a finished job unless the deadline has already passed, in
// which case the job stays pending and its records are dropped. Dropping is
// safe: extraction has no external side effects.
func (s *Scheduler) complete(ctx context.Context, job show.Job, records []show.Show) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, jobKey(job))
	s.results = append(s.results, records...)
}

func (s *Scheduler) run(ctx context.Context, job show.Job) {
	day, err := show.ParseDay(job.Day)
	if err != nil {
		s.logger.Warn("job has malformed day, dropping", zap.String("day", job.Day), zap.Error(err))
		metrics.IncJob("failed")
		s.complete(ctx, job, nil)
		return
	}

	body, err := s.fetcher.Fetch(ctx, job.URL)
	switch {
	case errors.Is(err, fetcher.ErrBudgetExceeded):
		// Stop launching; the job itself goes back for a future invocation.
		s.mu.Lock()
		s.budgetHit = true
		s.mu.Unlock()
		s.requeue(job)
		metrics.IncJob("budget")
		s.logger.Info("request budget exhausted, job re-queued", zap.String("day", job.Day))
		return
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Interrupted, not failed: leave the job pending.
		return
	case err != nil:
		s.logger.Warn("day fetch failed", zap.String("url", job.URL), zap.Error(err))
		metrics.IncJob("failed")
		s.complete(ctx, job, nil)
		return
	}

	var records []show.Show
	switch {
	case s.extractor.HasNoEventsMarker(body):
		s.logger.Debug("no events on day", zap.String("day", job.Day))
	case s.allListingsKnown(ctx, body, job.Day):
		s.logger.Debug("all listings already seen, skipping extraction", zap.String("day", job.Day))
	default:
		records = s.extractor.Extract(body, day)
		metrics.AddShowsExtracted(len(records))
	}
	metrics.IncJob("completed")
	s.complete(ctx, job, records)
}

// allListingsKnown runs the identifier-only pre-scan and reports whether
// every candidate on the page is already in the seen index.
func (s *Scheduler) allListingsKnown(ctx context.Context, body []byte, day string) bool {
	if s.seen == nil {
		return false
	}
	candidates := s.extractor.ScanEventURLs(body)
	if len(candidates) == 0 {
		return false
	}
	for _, u := range candidates {
		if !s.seen.HasSeen(ctx, show.CandidateKey(u, day)) {
			return false
		}
	}
	return true
}

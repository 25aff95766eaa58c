// Package crawl ties discovery, scheduling, and checkpointing together into
// one resumable invocation. Each invocation advances the logical crawl by a
// bounded chunk of work and leaves a durable checkpoint behind, so a crawl
// too large for one run completes across several.
package crawl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/checkpoint"
	"github.com/showwatch/showwatch/internal/fetcher"
	"github.com/showwatch/showwatch/internal/metrics"
	"github.com/showwatch/showwatch/internal/scheduler"
	"github.com/showwatch/showwatch/internal/show"
)

// Discoverer finds the dates a fresh crawl should visit and maps a date to
// its programme page URL.
type Discoverer interface {
	Discover(ctx context.Context, startDay string) ([]string, error)
	DayURL(day string) string
}

// BudgetFetcher is the fetching surface the orchestrator needs: the fetch
// itself plus the request counter it checkpoints and restores.
type BudgetFetcher interface {
	fetcher.Fetcher
	RequestCount() int
	RestoreRequestCount(n int)
	BudgetRemaining() bool
}

// Config controls one invocation.
type Config struct {
	// ChunkSize caps how many unprocessed dates one invocation schedules.
	ChunkSize int
	// MaxConcurrent bounds parallel scrape jobs.
	MaxConcurrent int
	// Timeout is the wall-clock budget for one invocation. Zero means the
	// caller's context is the only bound.
	Timeout time.Duration
	// MinRunway is the least time an invocation needs to do useful work. If
	// the caller's deadline leaves less than this, the invocation is a no-op
	// rather than a half-started chunk.
	MinRunway time.Duration
}

// Result summarizes one invocation.
type Result struct {
	// Shows is the full accumulated record set of the logical crawl so far,
	// including records carried over from the resumed checkpoint.
	Shows []show.Show
	// Complete is true when every discovered date was processed and no job
	// is pending. The checkpoint is cleared on completion.
	Complete bool
	// PendingDates counts the dates still unprocessed after this invocation.
	PendingDates int
}

// Orchestrator drives the crawl state machine.
type Orchestrator struct {
	cfg        Config
	discoverer Discoverer
	fetcher    BudgetFetcher
	extractor  scheduler.Extractor
	cp         *checkpoint.Store
	clock      show.Clock
	logger     *zap.Logger
}

// New builds an Orchestrator.
func New(cfg Config, d Discoverer, f BudgetFetcher, e scheduler.Extractor,
	cp *checkpoint.Store, clock show.Clock, logger *zap.Logger) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1
	}
	return &Orchestrator{
		cfg:        cfg,
		discoverer: d,
		fetcher:    f,
		extractor:  e,
		cp:         cp,
		clock:      clock,
		logger:     logger,
	}
}

// Run executes one invocation: resume or start a crawl, scrape a chunk of
// dates under the wall-clock and request budgets, then checkpoint or clear.
// Run only errors when discovery fails on a fresh crawl; everything after
// the initial checkpoint degrades to "save progress and come back".
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	logger := o.logger.With(zap.String("invocation_id", uuid.NewString()))

	if deadline, ok := ctx.Deadline(); ok && o.cfg.MinRunway > 0 {
		if o.clock.Now().Add(o.cfg.MinRunway).After(deadline) {
			logger.Info("not enough runway before deadline, skipping invocation")
			metrics.IncInvocation("noop")
			return Result{}, nil
		}
	}
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	state, err := o.resumeOrStart(ctx, logger)
	if err != nil {
		metrics.IncInvocation("failed")
		return Result{}, err
	}

	chunk := state.PendingDates()
	if len(chunk) > o.cfg.ChunkSize {
		chunk = chunk[:o.cfg.ChunkSize]
	}
	logger.Info("invocation starting",
		zap.Int("chunk_dates", len(chunk)),
		zap.Int("carried_jobs", len(state.PendingJobs)),
		zap.Int("request_count", state.RequestCount),
	)

	sched := scheduler.New(o.fetcher, o.extractor, o.cp,
		scheduler.Config{MaxConcurrent: o.cfg.MaxConcurrent}, logger)
	for _, job := range state.PendingJobs {
		sched.Add(job)
	}
	for _, day := range chunk {
		sched.Add(show.Job{URL: o.discoverer.DayURL(day), Day: day})
	}

	shows := sched.WaitForCompletion(ctx)
	o.bookkeep(state, chunk, sched.PendingJobs(), shows)

	pending := state.PendingDates()
	complete := len(state.PendingJobs) == 0 && len(pending) == 0 && o.fetcher.BudgetRemaining()
	metrics.SetPendingDates(len(pending))

	// Checkpoint writes must not be cut off by the invocation deadline.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if complete {
		o.cp.Clear(saveCtx)
		metrics.IncInvocation("complete")
		logger.Info("crawl complete",
			zap.Int("shows", len(state.CompletedShows)),
			zap.Int("requests", state.RequestCount),
		)
	} else {
		o.cp.Save(saveCtx, state)
		metrics.IncInvocation("checkpointed")
		logger.Info("crawl checkpointed",
			zap.Int("shows", len(state.CompletedShows)),
			zap.Int("pending_dates", len(pending)),
			zap.Int("pending_jobs", len(state.PendingJobs)),
			zap.Int("requests", state.RequestCount),
		)
	}

	return Result{
		Shows:        append([]show.Show(nil), state.CompletedShows...),
		Complete:     complete,
		PendingDates: len(pending),
	}, nil
}

// resumeOrStart loads a fresh-enough checkpoint, or discovers the date set
// for a new crawl. A new crawl is checkpointed immediately so the discovery
// request is not repeated if this invocation dies before finishing a chunk.
func (o *Orchestrator) resumeOrStart(ctx context.Context, logger *zap.Logger) (*checkpoint.CrawlState, error) {
	if state := o.cp.Load(ctx); state != nil {
		o.fetcher.RestoreRequestCount(state.RequestCount)
		logger.Info("resuming checkpointed crawl",
			zap.Time("last_updated", state.LastUpdated),
			zap.Int("pending_dates", len(state.PendingDates())),
		)
		return state, nil
	}

	today := o.clock.Now().Format(show.DayFormat)
	dates, err := o.discoverer.Discover(ctx, today)
	if err != nil {
		return nil, err
	}
	state := &checkpoint.CrawlState{
		AllDatesToScrape: dates,
		RequestCount:     o.fetcher.RequestCount(),
	}
	o.cp.Save(ctx, state)
	logger.Info("starting fresh crawl", zap.Int("dates", len(dates)))
	return state, nil
}

// bookkeep folds one scheduler drain back into the crawl state: completed
// records merge by ID, unfinished jobs carry over, and a scheduled day counts
// as processed only when no pending job references it anymore.
func (o *Orchestrator) bookkeep(state *checkpoint.CrawlState, chunk []string, pendingJobs []show.Job, shows []show.Show) {
	pendingDays := make(map[string]struct{}, len(pendingJobs))
	for _, j := range pendingJobs {
		pendingDays[j.Day] = struct{}{}
	}

	scheduled := make([]string, 0, len(chunk)+len(state.PendingJobs))
	scheduled = append(scheduled, chunk...)
	for _, j := range state.PendingJobs {
		scheduled = append(scheduled, j.Day)
	}
	processed := make(map[string]struct{}, len(state.ProcessedDates))
	for _, d := range state.ProcessedDates {
		processed[d] = struct{}{}
	}
	for _, day := range scheduled {
		if _, still := pendingDays[day]; still {
			continue
		}
		if _, dup := processed[day]; dup {
			continue
		}
		processed[day] = struct{}{}
		state.ProcessedDates = append(state.ProcessedDates, day)
	}

	state.PendingJobs = pendingJobs
	state.CompletedShows = show.MergeByID(state.CompletedShows, shows)
	state.RequestCount = o.fetcher.RequestCount()
}

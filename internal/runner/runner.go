// Package runner schedules recurring crawl-and-deliver passes.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/crawl"
	"github.com/showwatch/showwatch/internal/delivery"
	"github.com/showwatch/showwatch/internal/show"
)

// Crawler runs one crawl invocation.
type Crawler interface {
	Run(ctx context.Context) (crawl.Result, error)
}

// Deliverer reconciles crawl results downstream.
type Deliverer interface {
	Deliver(ctx context.Context, records []show.Show) (delivery.Summary, error)
}

// Config controls the schedule.
type Config struct {
	// Schedule is a cron expression, e.g. "*/15 * * * *".
	Schedule string
	// RunOnStart triggers one pass immediately instead of waiting for the
	// first tick.
	RunOnStart bool
}

// Runner drives crawl passes on a cron schedule. Ticks never overlap: a
// tick that fires while the previous pass is still running is skipped, the
// checkpoint carries the work forward.
type Runner struct {
	cfg       Config
	crawler   Crawler
	deliverer Deliverer
	logger    *zap.Logger

	cron    *cron.Cron
	running sync.Mutex
}

// New builds a Runner.
func New(cfg Config, c Crawler, d Deliverer, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		crawler:   c,
		deliverer: d,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the schedule and begins ticking. The ctx bounds each pass,
// not the runner lifetime; call Stop to shut down.
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		if !r.running.TryLock() {
			r.logger.Info("previous pass still running, skipping tick")
			return
		}
		defer r.running.Unlock()
		if err := r.runOnce(ctx); err != nil {
			r.logger.Error("scheduled pass failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("parse schedule %q: %w", r.cfg.Schedule, err)
	}

	if r.cfg.RunOnStart {
		r.running.Lock()
		go func() {
			defer r.running.Unlock()
			if err := r.runOnce(ctx); err != nil {
				r.logger.Error("startup pass failed", zap.Error(err))
			}
		}()
	}

	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.running.Lock()
	r.running.Unlock()
}

// RunOnce executes a single crawl-and-deliver pass, for one-shot mode.
func (r *Runner) RunOnce(ctx context.Context) error {
	r.running.Lock()
	defer r.running.Unlock()
	return r.runOnce(ctx)
}

func (r *Runner) runOnce(ctx context.Context) error {
	result, err := r.crawler.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	if len(result.Shows) == 0 {
		r.logger.Info("pass finished, nothing to deliver",
			zap.Bool("complete", result.Complete),
			zap.Int("pending_dates", result.PendingDates),
		)
		return nil
	}
	sum, err := r.deliverer.Deliver(ctx, result.Shows)
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	r.logger.Info("pass finished",
		zap.Bool("complete", result.Complete),
		zap.Int("pending_dates", result.PendingDates),
		zap.Int("new", sum.New),
		zap.Int("updated", sum.Updated),
	)
	return nil
}

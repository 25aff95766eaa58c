// Package fetcher implements the budgeted page fetcher every other crawl
// component calls through. It enforces the per-invocation request ceiling,
// retries transient failures with a fixed delay, and serves repeat URLs from
// a bounded in-memory cache.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/metrics"
)

// ErrBudgetExceeded is returned when the request counter has reached the
// configured ceiling. It is never retried: retrying would itself consume
// budget.
var ErrBudgetExceeded = errors.New("request budget exceeded")

// Getter performs a single network GET and returns the response body.
// Non-2xx responses are errors.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Fetcher is the contract consumers depend on.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config controls budget, retry, and cache behavior.
type Config struct {
	// MaxRequests is the per-invocation ceiling on network attempts.
	MaxRequests int
	// MaxRetries is the number of additional attempts after a failure.
	MaxRetries int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// CacheMaxEntries bounds the page cache; reaching it evicts the whole
	// cache. The cache only exists to avoid re-fetching the same URL within
	// one invocation, so wholesale eviction is acceptable.
	CacheMaxEntries int
}

// Budgeted wraps a Getter with the request counter and page cache. The
// counter and cache are instance fields, not package state, so tests inject
// a fresh Budgeted per case.
type Budgeted struct {
	getter Getter
	cfg    Config
	logger *zap.Logger

	mu           sync.Mutex
	requestCount int
	cache        map[string][]byte
}

// New builds a Budgeted fetcher.
func New(getter Getter, cfg Config, logger *zap.Logger) *Budgeted {
	return &Budgeted{
		getter: getter,
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string][]byte),
	}
}

// Fetch returns the page body for url. A cache hit bypasses both the
// counter and the network. Transient failures are retried up to MaxRetries
// times with a fixed delay; budget exhaustion fails fast and after the last
// retry the last error is returned as-is.
func (f *Budgeted) Fetch(ctx context.Context, url string) ([]byte, error) {
	if body, ok := f.cached(url); ok {
		metrics.IncCacheHit()
		return body, nil
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := f.wait(ctx); err != nil {
				return nil, err
			}
		}
		if !f.consumeBudget() {
			metrics.IncBudgetExhausted()
			return nil, ErrBudgetExceeded
		}
		metrics.IncRequest()

		body, err := f.getter.Get(ctx, url)
		if err == nil {
			f.store(url, body)
			return body, nil
		}
		lastErr = err
		f.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// RequestCount returns the number of network attempts so far.
func (f *Budgeted) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestCount
}

// RestoreRequestCount seeds the counter from a resumed checkpoint so the
// ceiling spans the whole logical crawl, not just this invocation.
func (f *Budgeted) RestoreRequestCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestCount = n
}

// BudgetRemaining reports whether at least one network attempt is left.
func (f *Budgeted) BudgetRemaining() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestCount < f.cfg.MaxRequests
}

func (f *Budgeted) consumeBudget() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestCount >= f.cfg.MaxRequests {
		return false
	}
	f.requestCount++
	return true
}

func (f *Budgeted) cached(url string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.cache[url]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), body...), true
}

func (f *Budgeted) store(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.CacheMaxEntries > 0 && len(f.cache) >= f.cfg.CacheMaxEntries {
		f.cache = make(map[string][]byte)
	}
	f.cache[url] = append([]byte(nil), body...)
}

func (f *Budgeted) wait(ctx context.Context) error {
	if f.cfg.RetryDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(f.cfg.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Package checkpoint persists crawl progress between short-lived
// invocations. It wraps a kv.Store with JSON encoding, a freshness window
// for the crawl state, and the seen-ID index used for delivery dedup.
//
// Every operation degrades gracefully: a checkpoint that cannot be read or
// written is logged and treated as absent. Losing a checkpoint costs extra
// re-scraping, never a failed crawl.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/kv"
	"github.com/showwatch/showwatch/internal/show"
)

const (
	stateKey   = "crawl:state"
	seenPrefix = "seen:"
)

// CrawlState is the durable snapshot that lets the next invocation resume
// exactly where this one left off.
type CrawlState struct {
	LastUpdated      time.Time   `json:"last_updated"`
	AllDatesToScrape []string    `json:"all_dates_to_scrape"`
	ProcessedDates   []string    `json:"processed_dates"`
	PendingJobs      []show.Job  `json:"pending_jobs"`
	CompletedShows   []show.Show `json:"completed_shows"`
	RequestCount     int         `json:"request_count"`
}

// PendingDates returns the candidate dates not yet processed, in the order
// they were discovered (ascending).
func (s *CrawlState) PendingDates() []string {
	processed := make(map[string]struct{}, len(s.ProcessedDates))
	for _, d := range s.ProcessedDates {
		processed[d] = struct{}{}
	}
	var pending []string
	for _, d := range s.AllDatesToScrape {
		if _, ok := processed[d]; !ok {
			pending = append(pending, d)
		}
	}
	return pending
}

// Store reads and writes crawl state and the seen-ID index.
type Store struct {
	kv        kv.Store
	freshness time.Duration
	clock     show.Clock
	logger    *zap.Logger
}

// New builds a Store. The freshness window bounds both how old a resumed
// CrawlState may be and how long seen-ID entries live.
func New(store kv.Store, freshness time.Duration, clock show.Clock, logger *zap.Logger) *Store {
	return &Store{
		kv:        store,
		freshness: freshness,
		clock:     clock,
		logger:    logger,
	}
}

// Load returns the persisted CrawlState, or nil when it is absent,
// malformed, or older than the freshness window. An old partial crawl must
// not silently resume long after the source has changed.
func (s *Store) Load(ctx context.Context) *CrawlState {
	raw, err := s.kv.Get(ctx, stateKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("checkpoint read failed, starting fresh", zap.Error(err))
		return nil
	}
	var state CrawlState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.Warn("checkpoint malformed, starting fresh", zap.Error(err))
		return nil
	}
	if age := s.clock.Now().Sub(state.LastUpdated); age > s.freshness {
		s.logger.Info("checkpoint stale, starting fresh",
			zap.Duration("age", age),
			zap.Duration("freshness_window", s.freshness),
		)
		return nil
	}
	return &state
}

// Save persists the CrawlState, stamping LastUpdated.
func (s *Store) Save(ctx context.Context, state *CrawlState) {
	state.LastUpdated = s.clock.Now()
	raw, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("checkpoint encode failed, progress not saved", zap.Error(err))
		return
	}
	if err := s.kv.Put(ctx, stateKey, string(raw), s.freshness); err != nil {
		s.logger.Warn("checkpoint write failed, progress not saved", zap.Error(err))
	}
}

// Clear removes the CrawlState once a crawl is judged complete.
func (s *Store) Clear(ctx context.Context) {
	if err := s.kv.Delete(ctx, stateKey); err != nil {
		// The freshness window will discard it on the next load anyway.
		s.logger.Warn("checkpoint clear failed", zap.Error(err))
	}
}

// HasSeen reports whether the record ID was already delivered downstream.
func (s *Store) HasSeen(ctx context.Context, id string) bool {
	_, err := s.kv.Get(ctx, seenPrefix+id)
	if errors.Is(err, kv.ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.Warn("seen-id read failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return true
}

// MarkSeen records the ID in the seen index; entries expire with the same
// freshness window as the crawl state.
func (s *Store) MarkSeen(ctx context.Context, id string) {
	if err := s.kv.Put(ctx, seenPrefix+id, "1", s.freshness); err != nil {
		s.logger.Warn("seen-id write failed", zap.String("id", id), zap.Error(err))
	}
}

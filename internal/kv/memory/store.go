// Package memory provides an in-memory kv.Store for tests and local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/showwatch/showwatch/internal/kv"
	"github.com/showwatch/showwatch/internal/show"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store keeps values in a map with lazy expiry on read.
type Store struct {
	mu    sync.RWMutex
	data  map[string]entry
	clock show.Clock
}

// New returns an empty Store using the provided clock for expiry checks.
func New(clock show.Clock) *Store {
	return &Store{
		data:  make(map[string]entry),
		clock: clock,
	}
}

// Get returns the stored value or kv.ErrNotFound once the TTL has lapsed.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return "", kv.ErrNotFound
	}
	if !e.expiresAt.IsZero() && s.clock.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return "", kv.ErrNotFound
	}
	return e.value, nil
}

// Put stores the value, stamping an expiry when ttl > 0.
func (s *Store) Put(_ context.Context, key string, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.data[key] = e
	s.mu.Unlock()
	return nil
}

// Delete removes the key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// Len reports the number of live entries, for test assertions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Package memory provides an in-memory catalog for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/showwatch/showwatch/internal/show"
)

// Store keeps show records in a map keyed by record ID.
type Store struct {
	mu    sync.RWMutex
	shows map[string]show.Show
}

// New returns an empty Store.
func New() *Store {
	return &Store{shows: make(map[string]show.Show)}
}

// Projections returns the id->fingerprint map of every stored record.
func (s *Store) Projections(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projections := make(map[string]string, len(s.shows))
	for id, rec := range s.shows {
		projections[id] = rec.ContentFingerprint
	}
	return projections, nil
}

// Upsert stores the record, overwriting any existing record with the same ID.
func (s *Store) Upsert(_ context.Context, rec show.Show) error {
	s.mu.Lock()
	s.shows[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

// Delete removes the record with the given ID.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.shows, id)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

// Get returns the stored record, for test assertions.
func (s *Store) Get(id string) (show.Show, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.shows[id]
	return rec, ok
}

// Package kv defines the key/value contract the checkpoint layer persists
// through. Any store with get/put-with-TTL/delete semantics satisfies it:
// embedded (badger), managed (GCS), or in-memory for tests.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store persists string values under string keys with per-key expiry.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Put stores value under key. A zero ttl means no expiry.
	Put(ctx context.Context, key string, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Package catalog defines the downstream record store the delivery step
// reconciles crawl results against.
package catalog

import (
	"context"

	"github.com/showwatch/showwatch/internal/show"
)

// Store is the catalog contract. Projections returns the id->fingerprint map
// of everything currently stored; delivery diffs crawl results against it and
// calls Upsert for new or changed records.
type Store interface {
	Projections(ctx context.Context) (map[string]string, error)
	Upsert(ctx context.Context, s show.Show) error
	Delete(ctx context.Context, id string) error
	Close()
}

// Noop discards all writes. It backs runs where no catalog is configured.
type Noop struct{}

// Projections always reports an empty catalog.
func (Noop) Projections(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

// Upsert discards the record.
func (Noop) Upsert(context.Context, show.Show) error { return nil }

// Delete discards the id.
func (Noop) Delete(context.Context, string) error { return nil }

// Close is a no-op.
func (Noop) Close() {}

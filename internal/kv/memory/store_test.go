package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/showwatch/showwatch/internal/kv"
)

// fakeClock lets tests move time forward explicitly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStorePutGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(&fakeClock{now: time.Unix(1000, 0)})

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Put(ctx, "k", "v", 0))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", got)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, kv.ErrNotFound)

	// Deleting an absent key is fine.
	require.NoError(t, s.Delete(ctx, "k"))
}

func TestStoreTTLExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New(clock)

	require.NoError(t, s.Put(ctx, "k", "v", time.Hour))
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	clock.advance(2 * time.Hour)
	_, err = s.Get(ctx, "k")
	require.True(t, errors.Is(err, kv.ErrNotFound))
	require.Zero(t, s.Len(), "expired entry should be evicted on read")
}

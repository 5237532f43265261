package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterCeiling(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(NewMemoryStore(), 3, time.Minute, nil)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "key"), "attempt %d should be allowed", i)
		limiter.LogAttempt(ctx, "key")
	}
	assert.False(t, limiter.Allow(ctx, "key"))

	// Other keys are unaffected.
	assert.True(t, limiter.Allow(ctx, "other"))
}

func TestLimiterReset(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(NewMemoryStore(), 1, time.Minute, nil)

	limiter.LogAttempt(ctx, "key")
	require.False(t, limiter.Allow(ctx, "key"))

	limiter.Reset(ctx, "key")
	assert.True(t, limiter.Allow(ctx, "key"))
}

func TestMemoryStoreWindowExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		_, err := store.Increment(ctx, "key", time.Minute)
		require.NoError(t, err)
	}
	count, err := store.Count(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	current = current.Add(2 * time.Minute)

	count, err = store.Count(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// The next increment starts a fresh window.
	n, err := store.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type failingStore struct{}

func (failingStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("store down")
}

func (failingStore) Count(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("store down")
}

func (failingStore) Reset(ctx context.Context, key string) error {
	return errors.New("store down")
}

func TestLimiterFailsOpen(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(failingStore{}, 1, time.Minute, nil)

	assert.True(t, limiter.Allow(ctx, "key"))
	limiter.LogAttempt(ctx, "key")
	limiter.Reset(ctx, "key")
	assert.True(t, limiter.Allow(ctx, "key"))
}

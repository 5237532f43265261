package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreIncrementAndCount(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := store.Increment(ctx, "key", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	count, err := store.Count(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = store.Count(ctx, "absent")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestRedisStoreWindowExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	_, err := store.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)
	_, err = store.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	count, err := store.Count(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "counter must expire with its window")
}

func TestRedisStoreReset(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	_, err := store.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "key"))

	count, err := store.Count(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Resetting an absent key is fine.
	require.NoError(t, store.Reset(ctx, "absent"))
}

func TestLimiterOverRedis(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	limiter := NewLimiter(store, 2, time.Minute, nil)

	limiter.LogAttempt(ctx, "key")
	limiter.LogAttempt(ctx, "key")
	assert.False(t, limiter.Allow(ctx, "key"))

	mr.FastForward(2 * time.Minute)
	assert.True(t, limiter.Allow(ctx, "key"))
}

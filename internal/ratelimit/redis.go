package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore backs the limiter with a shared Redis counter so the
// ceiling holds across processes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed counter store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(key string) string {
	return redisKeyPrefix + key
}

// Increment implements CounterStore. The window TTL is attached on the
// first increment so the counter expires with its window.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, s.key(key), window).Err(); err != nil {
			return 0, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}
	return count, nil
}

// Count implements CounterStore.
func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, s.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("ratelimit: get: %w", err)
	}
	return count, nil
}

// Reset implements CounterStore.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ratelimit: del: %w", err)
	}
	return nil
}

var (
	_ CounterStore = (*RedisStore)(nil)
	_ CounterStore = (*MemoryStore)(nil)
)

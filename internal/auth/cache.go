package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const sessionCacheMaxTTL = 15 * time.Minute

// SessionCache fronts session lookups with Redis so every protected
// request does not hit Postgres. Entries are keyed by a digest of the
// token, never the raw token, and live for at most fifteen minutes or
// the session's remaining lifetime, whichever is shorter. Expiry is
// re-checked by the validator on every hit, so a cached row can never
// outlive its session.
type SessionCache struct {
	client *redis.Client
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionCache constructs a cache over the given Redis client.
func NewSessionCache(client *redis.Client, logger *slog.Logger) *SessionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCache{client: client, logger: logger, now: time.Now}
}

func sessionCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + hex.EncodeToString(sum[:])
}

// Fetch returns the session for token, loading through the given loader
// on a miss. Concurrent misses for the same token collapse into one
// loader call. Cache failures degrade to the loader, never to an error.
func (c *SessionCache) Fetch(ctx context.Context, token string, loader func(context.Context) (*Session, error)) (*Session, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	key := sessionCacheKey(token)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var sess Session
		if err := json.Unmarshal(data, &sess); err == nil {
			return &sess, nil
		}
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("session cache read failed", slog.Any("error", err))
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		sess, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, sess)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Session), nil
}

func (c *SessionCache) store(ctx context.Context, key string, sess *Session) {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if ttl > sessionCacheMaxTTL {
		ttl = sessionCacheMaxTTL
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("session cache write failed", slog.Any("error", err))
	}
}

// Invalidate drops the cached entry after rotation or logout.
func (c *SessionCache) Invalidate(ctx context.Context, token string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, sessionCacheKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("session cache invalidate failed", slog.Any("error", err))
	}
}

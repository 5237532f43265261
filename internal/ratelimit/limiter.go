// Package ratelimit bounds the number of attempts per identity key
// inside a rolling time window. Counters are best-effort: they may
// reset on process restart and the limiter fails open when the backing
// store is unreachable, so it must be combined with the CAPTCHA gate
// and device fingerprinting rather than relied on alone.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CounterStore abstracts the shared counter backend so the limiter can
// run against Redis in production and process memory in tests.
type CounterStore interface {
	// Increment bumps the counter for key, starting a new window of the
	// given length when the key has no live counter. Returns the count
	// after the increment.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// Count returns the current counter value, zero when no window is live.
	Count(ctx context.Context, key string) (int64, error)
	// Reset clears the counter for key.
	Reset(ctx context.Context, key string) error
}

// Limiter gates processing per identity key.
type Limiter struct {
	store  CounterStore
	max    int64
	window time.Duration
	logger *slog.Logger
}

// NewLimiter constructs a Limiter allowing at most max attempts per window.
func NewLimiter(store CounterStore, max int64, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, max: max, window: window, logger: logger}
}

// Allow reports whether the key is still under the attempt ceiling.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	count, err := l.store.Count(ctx, key)
	if err != nil {
		l.logger.Warn("rate limit read failed", slog.String("key", key), slog.Any("error", err))
		return true
	}
	return count < l.max
}

// LogAttempt records a failed or gated attempt against the key.
func (l *Limiter) LogAttempt(ctx context.Context, key string) {
	if _, err := l.store.Increment(ctx, key, l.window); err != nil {
		l.logger.Warn("rate limit increment failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Reset clears the counter for key, e.g. after a successful login.
func (l *Limiter) Reset(ctx context.Context, key string) {
	if err := l.store.Reset(ctx, key); err != nil {
		l.logger.Warn("rate limit reset failed", slog.String("key", key), slog.Any("error", err))
	}
}

type memoryEntry struct {
	count       int64
	windowStart time.Time
	window      time.Duration
}

// MemoryStore keeps counters in process memory. Counters vanish on
// restart, which is acceptable degradation for an abuse deterrent.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

// Increment implements CounterStore.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) > entry.window {
		entry = &memoryEntry{windowStart: now, window: window}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Count implements CounterStore.
func (s *MemoryStore) Count(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	if s.now().Sub(entry.windowStart) > entry.window {
		delete(s.entries, key)
		return 0, nil
	}
	return entry.count, nil
}

// Reset implements CounterStore.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

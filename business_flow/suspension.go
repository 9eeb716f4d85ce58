package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/darzihub/darzi-notify/config"
)

// SuspensionStore tracks consecutive send failures per customer and the
// resulting suspensions. Implementations must expire state on their own;
// callers never clean up for them.
type SuspensionStore interface {
	// IncrFailures bumps the failure streak and returns the new count. The
	// streak resets itself after the window passes with no further failures.
	IncrFailures(ctx context.Context, customerID string, window time.Duration) (int, error)
	// ClearFailures resets the streak after a successful send.
	ClearFailures(ctx context.Context, customerID string) error
	// Suspend blocks the customer until the given instant.
	Suspend(ctx context.Context, customerID string, until time.Time) error
	// SuspendedUntil returns the active suspension deadline, if any.
	SuspendedUntil(ctx context.Context, customerID string) (time.Time, bool, error)
}

// CircuitBreaker suspends a customer's number after repeated transport
// failures so one bad number cannot burn the whole send budget every cycle.
type CircuitBreaker struct {
	store SuspensionStore
	cfg   config.PolicyConfig
}

func NewCircuitBreaker(store SuspensionStore, cfg config.PolicyConfig) *CircuitBreaker {
	return &CircuitBreaker{store: store, cfg: cfg}
}

// OnFailure records a failed send. Once the streak reaches the configured
// threshold the customer is suspended and the streak resets.
func (b *CircuitBreaker) OnFailure(ctx context.Context, customerID string, now time.Time) error {
	if b.cfg.BreakerThreshold <= 0 {
		return nil
	}
	streak, err := b.store.IncrFailures(ctx, customerID, b.cfg.BreakerWindow)
	if err != nil {
		return fmt.Errorf("failed to record send failure: %w", err)
	}
	if streak < b.cfg.BreakerThreshold {
		return nil
	}
	if err := b.store.Suspend(ctx, customerID, now.Add(b.cfg.BreakerSuspension)); err != nil {
		return fmt.Errorf("failed to suspend customer: %w", err)
	}
	return b.store.ClearFailures(ctx, customerID)
}

// OnSuccess resets the failure streak.
func (b *CircuitBreaker) OnSuccess(ctx context.Context, customerID string) error {
	return b.store.ClearFailures(ctx, customerID)
}

// Suspended reports whether the customer is currently suspended.
func (b *CircuitBreaker) Suspended(ctx context.Context, customerID string, now time.Time) (bool, error) {
	until, ok, err := b.store.SuspendedUntil(ctx, customerID)
	if err != nil {
		return false, fmt.Errorf("failed to check suspension: %w", err)
	}
	return ok && now.Before(until), nil
}

// memorySuspensionStore is the in-process fallback used when no cache backend
// is configured. State does not survive a restart, which is acceptable: the
// breaker only shields the current run from a flapping number.
type memorySuspensionStore struct {
	mu       sync.Mutex
	streaks  map[string]memoryStreak
	suspends map[string]time.Time
}

type memoryStreak struct {
	count     int
	expiresAt time.Time
}

func NewMemorySuspensionStore() SuspensionStore {
	return &memorySuspensionStore{
		streaks:  make(map[string]memoryStreak),
		suspends: make(map[string]time.Time),
	}
}

func (s *memorySuspensionStore) IncrFailures(_ context.Context, customerID string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	st := s.streaks[customerID]
	if !st.expiresAt.IsZero() && now.After(st.expiresAt) {
		st = memoryStreak{}
	}
	st.count++
	st.expiresAt = now.Add(window)
	s.streaks[customerID] = st
	return st.count, nil
}

func (s *memorySuspensionStore) ClearFailures(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streaks, customerID)
	return nil
}

func (s *memorySuspensionStore) Suspend(_ context.Context, customerID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspends[customerID] = until
	return nil
}

func (s *memorySuspensionStore) SuspendedUntil(_ context.Context, customerID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.suspends[customerID]
	if !ok {
		return time.Time{}, false, nil
	}
	if time.Now().After(until) {
		delete(s.suspends, customerID)
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// redisSuspensionStore keeps breaker state in Redis so suspensions survive a
// restart and are shared if more than one process ever runs.
type redisSuspensionStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSuspensionStore(client *redis.Client, prefix string) SuspensionStore {
	return &redisSuspensionStore{client: client, prefix: prefix}
}

func (s *redisSuspensionStore) streakKey(customerID string) string {
	return s.prefix + "breaker:streak:" + customerID
}

func (s *redisSuspensionStore) suspendKey(customerID string) string {
	return s.prefix + "breaker:suspend:" + customerID
}

func (s *redisSuspensionStore) IncrFailures(ctx context.Context, customerID string, window time.Duration) (int, error) {
	key := s.streakKey(customerID)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Refresh on every failure so the streak measures consecutive failures
	// within a sliding window, not a fixed one.
	if err := s.client.Expire(ctx, key, window).Err(); err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *redisSuspensionStore) ClearFailures(ctx context.Context, customerID string) error {
	return s.client.Del(ctx, s.streakKey(customerID)).Err()
}

func (s *redisSuspensionStore) Suspend(ctx context.Context, customerID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.suspendKey(customerID), until.UTC().Format(time.RFC3339), ttl).Err()
}

func (s *redisSuspensionStore) SuspendedUntil(ctx context.Context, customerID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.suspendKey(customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	until, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed suspension deadline %q: %w", val, err)
	}
	return until, true, nil
}

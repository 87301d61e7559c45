package app

import (
	"context"
	"fmt"
	"time"
)

// LockoutStore is the persistent counter behind the lockout tracker.
// RecordFailure must be atomic per key: two concurrent failures may never
// observe the same count.
type LockoutStore interface {
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
	Lock(ctx context.Context, key string, d time.Duration) error
	// LockRemaining returns how long the key stays locked, zero if unlocked.
	LockRemaining(ctx context.Context, key string) (time.Duration, error)
}

// LockoutTracker implements the Normal -> Locked -> Normal state machine
// per identifier. While locked, authentication fails fast without touching
// the credential check so lockout responses leak no timing signal about
// the credential itself.
type LockoutTracker struct {
	store     LockoutStore
	threshold int
	duration  time.Duration
}

func NewLockoutTracker(store LockoutStore, threshold int, duration time.Duration) *LockoutTracker {
	return &LockoutTracker{store: store, threshold: threshold, duration: duration}
}

// Remaining returns the time left in the lockout window for key, zero when
// the key is not locked.
func (t *LockoutTracker) Remaining(ctx context.Context, key string) (time.Duration, error) {
	remaining, err := t.store.LockRemaining(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("lockout remaining: %w", err)
	}
	return remaining, nil
}

// RecordFailure counts one failed attempt and transitions to Locked when
// the threshold is reached. The increment-and-compare is a single atomic
// unit against the store. Returns whether the key is now locked.
func (t *LockoutTracker) RecordFailure(ctx context.Context, key string) (bool, error) {
	count, err := t.store.RecordFailure(ctx, key, t.duration)
	if err != nil {
		return false, fmt.Errorf("lockout record failure: %w", err)
	}
	if count >= t.threshold {
		if err := t.store.Lock(ctx, key, t.duration); err != nil {
			return false, fmt.Errorf("lockout lock: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Reset clears the counter and any lock; called on successful
// authentication from any state.
func (t *LockoutTracker) Reset(ctx context.Context, key string) error {
	if err := t.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}

// Threshold exposes the configured failure threshold.
func (t *LockoutTracker) Threshold() int { return t.threshold }

// Duration exposes the configured lockout duration.
func (t *LockoutTracker) Duration() time.Duration { return t.duration }

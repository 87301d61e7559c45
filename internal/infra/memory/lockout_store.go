package memory

import (
	"context"
	"sync"
	"time"
)

// LockoutStore is an in-memory implementation of app.LockoutStore, used in
// tests and when no Redis is configured. Counter windows and locks expire
// against the injected clock.
type LockoutStore struct {
	clock func() time.Time

	mu      sync.Mutex
	counts  map[string]counterWindow
	lockEnd map[string]time.Time
}

type counterWindow struct {
	count     int
	expiresAt time.Time
}

func NewLockoutStore() *LockoutStore {
	return NewLockoutStoreWithClock(time.Now)
}

// NewLockoutStoreWithClock is test-only for deterministic expiry.
func NewLockoutStoreWithClock(now func() time.Time) *LockoutStore {
	return &LockoutStore{
		clock:   now,
		counts:  make(map[string]counterWindow),
		lockEnd: make(map[string]time.Time),
	}
}

func (s *LockoutStore) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	entry, ok := s.counts[key]
	if !ok || now.After(entry.expiresAt) {
		entry = counterWindow{count: 0, expiresAt: now.Add(window)}
	}
	entry.count++
	s.counts[key] = entry
	return entry.count, nil
}

func (s *LockoutStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	delete(s.lockEnd, key)
	return nil
}

func (s *LockoutStore) Lock(_ context.Context, key string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockEnd[key] = s.clock().Add(d)
	return nil
}

func (s *LockoutStore) LockRemaining(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	end, ok := s.lockEnd[key]
	if !ok {
		return 0, nil
	}
	remaining := end.Sub(s.clock())
	if remaining <= 0 {
		delete(s.lockEnd, key)
		return 0, nil
	}
	return remaining, nil
}

package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutStore keeps failed-attempt counters and lock markers in Redis.
// INCR makes the increment-and-compare atomic across instances, which is
// what stops two concurrent failures from both reading the same count.
type LockoutStore struct {
	client *redis.Client
}

func NewLockoutStore(client *redis.Client) *LockoutStore {
	return &LockoutStore{client: client}
}

func (s *LockoutStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	failKey := s.failKey(key)
	count, err := s.client.Incr(ctx, failKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 && window > 0 {
		// First failure opens the counting window.
		_ = s.client.Expire(ctx, failKey, window).Err()
	}
	return int(count), nil
}

func (s *LockoutStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.failKey(key), s.lockKey(key)).Err()
}

func (s *LockoutStore) Lock(ctx context.Context, key string, d time.Duration) error {
	return s.client.Set(ctx, s.lockKey(key), strconv.FormatInt(time.Now().Add(d).Unix(), 10), d).Err()
}

func (s *LockoutStore) LockRemaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, s.lockKey(key)).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		// -2 key missing, -1 no expiry; neither counts as locked.
		return 0, nil
	}
	return ttl, nil
}

func (s *LockoutStore) failKey(key string) string {
	return "auth:fail:" + key
}

func (s *LockoutStore) lockKey(key string) string {
	return "auth:lock:" + key
}

package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failuresKeyPrefix = "otp:failures:"
	lockKeyPrefix     = "otp:locked:"
)

// RedisStore keeps the failure counter and the lock as two expiring keys.
// The counter key expires with its window; the lock key with the lockout.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	var (
		count *redis.StringCmd
		lock  *redis.StringCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Get(ctx, failuresKeyPrefix+key)
		lock = pipe.Get(ctx, lockKeyPrefix+key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get otp lockout: %w", err)
	}

	rec := &Record{Key: key}
	found := false
	if n, err := count.Int(); err == nil {
		rec.Failures = n
		found = true
	}
	if ms, err := lock.Int64(); err == nil {
		until := time.UnixMilli(ms)
		rec.LockedUntil = &until
		found = true
	}
	if !found {
		return nil, nil
	}
	return rec, nil
}

// RecordFailure increments the counter; the first failure of a window sets
// its expiry.
func (s *RedisStore) RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) (*Record, error) {
	k := failuresKeyPrefix + key
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record otp failure: %w", err)
	}
	return &Record{Key: key, Failures: int(incr.Val()), WindowStart: now}, nil
}

func (s *RedisStore) Lock(ctx context.Context, key string, until, now time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, failuresKeyPrefix+key)
		pipe.Set(ctx, lockKeyPrefix+key, strconv.FormatInt(until.UnixMilli(), 10), until.Sub(now))
		return nil
	})
	if err != nil {
		return fmt.Errorf("lock otp verification: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, failuresKeyPrefix+key, lockKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear otp lockout: %w", err)
	}
	return nil
}

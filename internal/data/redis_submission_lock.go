package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ourresearch/openalex-formatter/internal/core"
)

const defaultSubmissionLockTTL = 30 * time.Second

// RedisSubmissionLock implements core.SubmissionLock with SET NX keys.
type RedisSubmissionLock struct {
	client redis.UniversalClient
	prefix string
}

var _ core.SubmissionLock = (*RedisSubmissionLock)(nil)

// NewRedisSubmissionLock creates a lock whose keys live under prefix.
func NewRedisSubmissionLock(client redis.UniversalClient, prefix string) *RedisSubmissionLock {
	return &RedisSubmissionLock{client: client, prefix: prefix}
}

// Acquire sets key if it does not exist. A zero ttl uses a 30 second default
// so a crashed holder cannot block submissions forever.
func (l *RedisSubmissionLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrLockKeyRequired
	}
	if ttl <= 0 {
		ttl = defaultSubmissionLockTTL
	}

	cmd := l.client.SetArgs(ctx, l.prefix+key, "1", redis.SetArgs{Mode: "NX", TTL: ttl})
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis set nx: %w", err)
	}
	return cmd.Val() == "OK", nil
}

// Release deletes key.
func (l *RedisSubmissionLock) Release(ctx context.Context, key string) error {
	if key == "" {
		return ErrLockKeyRequired
	}
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

package allocator

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

// RedisLocker takes the allocation lock in redis so several processes can
// allocate tenants against the same catalog.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisLocker wraps a redislock client. Locks expire after ttl if their
// holder dies; Obtain retries every 100ms until ctx is done.
func NewRedisLocker(client *redislock.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  redislock.LinearBackoff(100 * time.Millisecond),
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Lease, error) {
	lock, err := l.client.Obtain(ctx, l.prefix+key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// KEYS: lock  ARGV: owner, ttlMillis
var refreshLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// KEYS: lock  ARGV: owner
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// WriterLock is a Redis lease naming the one instance allowed to append
// to the shared ledger journal. The lease expires after ttl unless the
// holder refreshes it.
type WriterLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewWriterLock 创建写锁，owner 为本实例的随机标识
func NewWriterLock(client *redis.Client, key string, ttl time.Duration) *WriterLock {
	return &WriterLock{
		client: client,
		key:    key,
		owner:  uuid.New().String(),
		ttl:    ttl,
	}
}

// TryAcquire takes the lease if nobody holds it.
func (w *WriterLock) TryAcquire(ctx context.Context) (bool, error) {
	if w.client == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}
	ok, err := w.client.SetNX(ctx, w.key, w.owner, w.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", w.key, err)
	}
	return ok, nil
}

// Refresh extends the lease; false means it expired and may belong to
// another instance now.
func (w *WriterLock) Refresh(ctx context.Context) (bool, error) {
	if w.client == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}
	n, err := refreshLockScript.Run(ctx, w.client, []string{w.key}, w.owner, w.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh %s: %w", w.key, err)
	}
	return n == 1, nil
}

// Release drops the lease if this instance still holds it.
func (w *WriterLock) Release(ctx context.Context) error {
	if w.client == nil {
		return nil
	}
	if err := releaseLockScript.Run(ctx, w.client, []string{w.key}, w.owner).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", w.key, err)
	}
	return nil
}

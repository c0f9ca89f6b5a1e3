package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock prevents two worker instances from draining the write queue at
// the same time. TryAcquire returns false when another holder is active;
// Release is a no-op for anyone but the current holder.
type RunLock interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// RedisRunLock implements RunLock with SETNX, suitable for distributed
// deployments where multiple instances share one queue
type RedisRunLock struct {
	client *redis.Client
	key    string
	token  string
}

// releaseScript deletes the lock key only when this instance still holds it
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// NewRedisRunLock creates a run lock with an existing Redis client
func NewRedisRunLock(client *redis.Client, key string) *RedisRunLock {
	if key == "" {
		key = "sync:worker:runlock"
	}
	return &RedisRunLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
	}
}

// TryAcquire attempts to take the lock for one run. The TTL guards against
// a crashed holder wedging the queue forever.
func (l *RedisRunLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	return ok, nil
}

// Release gives the lock back if this instance still holds it. An expired
// lock taken over by another instance is left alone.
func (l *RedisRunLock) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// LocalRunLock implements RunLock in process memory. Suitable for
// single-instance deployments and tests.
type LocalRunLock struct {
	mu       sync.Mutex
	held     bool
	expireAt time.Time
}

// NewLocalRunLock creates an in-process run lock
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

func (l *LocalRunLock) TryAcquire(_ context.Context, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if l.held && now.Before(l.expireAt) {
		return false, nil
	}
	l.held = true
	l.expireAt = now.Add(ttl)
	return true, nil
}

func (l *LocalRunLock) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

var (
	_ RunLock = (*RedisRunLock)(nil)
	_ RunLock = (*LocalRunLock)(nil)
)

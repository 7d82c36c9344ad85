package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
)

// ErrLockAcquire is returned when the lock cannot be acquired.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")

// unlockScript releases a lock only if we still hold it.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker implements ports.DistributedLocker using Redis SET NX PX.
type Locker struct {
	client backend.UniversalClient
	prefix string
}

// NewLocker creates a new Redis locker.
func NewLocker(client backend.UniversalClient, prefix string) *Locker {
	if prefix == "" {
		prefix = job.CronLockPrefix
	}
	return &Locker{
		client: client,
		prefix: prefix,
	}
}

func (l *Locker) acquire(ctx context.Context, lockKey string, ttl time.Duration) (ports.UnlockFunc, error) {
	val := uuid.NewString()
	success, err := l.client.SetNX(ctx, lockKey, val, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !success {
		return nil, nil
	}
	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, l.client, []string{lockKey}, val).Err()
	}, nil
}

// Lock blocks until the lock is acquired or the context is canceled.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		unlock, err := l.acquire(ctx, lockKey, ttl)
		if err != nil {
			return nil, err
		}
		if unlock != nil {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
			// Retry...
		}
	}
}

// TryLock attempts a single non-blocking acquisition.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	return l.acquire(ctx, l.prefix+"lock:"+key, ttl)
}

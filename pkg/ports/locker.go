package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// The cron scheduler uses it so a recurring job fires on exactly one worker
// instance per tick.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key.
	// It blocks until the lock is acquired or the context is canceled.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)

	// TryLock attempts a single non-blocking acquisition.
	// Returns a nil UnlockFunc when the lock is held elsewhere.
	TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

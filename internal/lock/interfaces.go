// Package lock serializes placement and completion against the shared
// archive collection. A single-node deployment uses in-process TTL locks;
// deployments where several ingestion processes share the collection switch
// to Redis-backed locks.
package lock

import (
	"context"
	"time"
)

// Locker is the locking interface the ingestion services depend on.
// Implementations differ only in scope: MemoryLocker covers one process,
// RedisLocker covers every process sharing the collection.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it is held elsewhere.
	// The lock expires on its own after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry attempts to acquire a lock, retrying up to
	// maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release releases a lock.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	// Returns true if the lock was extended, false if it's not held.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Lock binds a Locker to one key and tracks whether this caller holds it,
// so Release after a failed acquire is a safe no-op. The ingestion services
// use it for the acquire/defer-release pattern around placement and
// session completion.
type Lock struct {
	locker Locker
	key    string
	held   bool
}

// NewLock creates a Lock for key.
func NewLock(locker Locker, key string) *Lock {
	return &Lock{
		locker: locker,
		key:    key,
	}
}

// Acquire attempts to acquire the lock.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	acquired, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// AcquireWithRetry attempts to acquire the lock, retrying up to maxRetries
// times with retryDelay between attempts.
func (l *Lock) AcquireWithRetry(ctx context.Context, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	acquired, err := l.locker.AcquireWithRetry(ctx, l.key, ttl, maxRetries, retryDelay)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// Release releases the lock if this caller holds it.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	_, err := l.locker.Release(ctx, l.key)
	l.held = false
	return err
}

// Extend extends the lock TTL.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return nil
	}
	extended, err := l.locker.Extend(ctx, l.key, ttl)
	if err != nil {
		return err
	}
	if !extended {
		l.held = false
	}
	return nil
}

// IsHeld returns whether this caller holds the lock.
func (l *Lock) IsHeld() bool {
	return l.held
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// Placement returns a lock key for placing an archive under a final name.
// Serializes the existence check and the rename for one target filename.
func (lockKeys) Placement(filename string) string {
	return "lock:archive:place:" + filename
}

// SessionComplete returns a lock key for completing a chunked session.
func (lockKeys) SessionComplete(sessionID string) string {
	return "lock:session:complete:" + sessionID
}

// SessionSweep returns a lock key for the stale-session sweeper.
func (lockKeys) SessionSweep() string {
	return "lock:session:sweep"
}

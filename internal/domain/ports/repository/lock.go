package repository

import (
	"context"
	"time"
)

// StoreLockKey guards every mutation of the redemption store. Whole-set
// backends are rewritten as a unit, so the lock covers the store rather
// than a single code.
const StoreLockKey = "redemption:store"

// Locker serializes mutations of the redemption store. TryLock returns a
// token that must be handed back to Unlock; it fails with
// domain.ErrLockBusy when the lock cannot be acquired in time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter counts hits per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

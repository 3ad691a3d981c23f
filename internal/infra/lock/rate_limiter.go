package lock

import (
	"context"
	"sync"
	"time"

	"golden-ticket/internal/domain/ports/repository"
)

var _ repository.RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter is a fixed-window counter per key, the in-process twin
// of the Redis INCR/EXPIRE limiter.
type LocalRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count int
	reset time.Time
}

func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{windows: make(map[string]*window), now: time.Now}
}

func (r *LocalRateLimiter) Allow(ctx context.Context, key string, limit int, win time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(win)}
		r.windows[key] = w
		if len(r.windows) > 10_000 {
			r.sweep(now)
		}
	}
	w.count++
	return w.count <= limit, nil
}

// sweep drops expired windows. Called with mu held.
func (r *LocalRateLimiter) sweep(now time.Time) {
	for k, w := range r.windows {
		if !now.Before(w.reset) {
			delete(r.windows, k)
		}
	}
}

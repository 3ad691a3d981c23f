// Package lock provides the in-process Locker and RateLimiter used when no
// Redis is configured.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/ports/repository"

	"github.com/google/uuid"
)

var _ repository.Locker = (*LocalLocker)(nil)

// LocalLocker serializes holders of the same key within one process. A
// caller waits up to the wait timeout for the key, then gets ErrLockBusy.
// TTL is ignored: a process that dies takes its locks with it.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*held
	wait time.Duration
}

type held struct {
	token string
	ch    chan struct{}
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &LocalLocker{keys: make(map[string]*held), wait: wait}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		h, taken := l.keys[key]
		if !taken {
			token := uuid.NewString()
			l.keys[key] = &held{token: token, ch: make(chan struct{})}
			l.mu.Unlock()
			return token, nil
		}
		ch := h.ch
		l.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return "", domain.ErrLockBusy
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (l *LocalLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.keys[key]
	if !ok || h.token != token {
		return fmt.Errorf("unlock %q: not held by this token", key)
	}
	delete(l.keys, key)
	close(h.ch)
	return nil
}

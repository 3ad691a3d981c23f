//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounter implements RedisClient with in-memory counters.
type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	incrErr error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Ping(ctx context.Context) error { return nil }
func (f *fakeCounter) Close() error                   { return nil }

func (f *fakeCounter) Incr(ctx context.Context, key string) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounter) Expire(ctx context.Context, key string, d time.Duration) error {
	f.expires[key] = d
	return nil
}

func (f *fakeCounter) SetNX(ctx context.Context, key string, v interface{}, d time.Duration) (bool, error) {
	return false, nil
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCounter()
	rl := NewRateLimiter(fc)
	key := "golden-ticket:rate:golden-ticket:1.2.3.4"

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, fc.expires[key], "expiry set on first hit")

	fc.incrErr = errors.New("conn refused")
	_, err = rl.Allow(ctx, "other", 2, time.Minute)
	assert.Error(t, err)
}

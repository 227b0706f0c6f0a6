package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLimiter_WindowSequence(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(time.Minute, WithClock(clock.Now))
	ctx := context.Background()
	const n = 5

	for i := 1; i <= n; i++ {
		res, err := l.Allow(ctx, "key:k1", n)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i)
		assert.Equal(t, n-i, res.Remaining, "call %d", i)
	}

	res, err := l.Allow(ctx, "key:k1", n)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, res.RetryAfter)

	clock.Advance(time.Minute)
	res, err = l.Allow(ctx, "key:k1", n)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, n-1, res.Remaining)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(time.Minute, WithClock(newFakeClock().Now))
	ctx := context.Background()

	res, _ := l.Allow(ctx, "a", 1)
	assert.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "a", 1)
	assert.False(t, res.Allowed)
	res, _ = l.Allow(ctx, "b", 1)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_Unlimited(t *testing.T) {
	l := NewMemoryLimiter(0)
	for i := 0; i < 10; i++ {
		res, err := l.Allow(context.Background(), "a", 0)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, -1, res.Remaining)
	}
	assert.Equal(t, 0, l.Len())
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a", 10)
	_, _ = l.Allow(ctx, "b", 10)
	assert.Equal(t, 2, l.Len())

	clock.Advance(30 * time.Second)
	l.Sweep()
	assert.Equal(t, 2, l.Len())

	clock.Advance(30 * time.Second)
	l.Sweep()
	assert.Equal(t, 0, l.Len())

	_, _ = l.Allow(ctx, "c", 10)
	clock.Advance(2 * time.Minute)
	_, _ = l.Allow(ctx, "d", 10)
	assert.Equal(t, 1, l.Len(), "expired windows are swept lazily on Allow")
}

func TestMemoryLimiter_ConcurrentIncrements(t *testing.T) {
	l := NewMemoryLimiter(time.Minute, WithClock(newFakeClock().Now))
	const limit = 50

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "hot", limit)
			assert.NoError(t, err)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, limit, allowed)
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/agentfed/internal/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, windowLen time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	mgr, err := cache.NewManager(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	return NewRedisLimiter(mgr, windowLen, ""), mr
}

func TestRedisLimiter_WindowSequence(t *testing.T) {
	l, mr := newRedisLimiter(t, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "key:k1", 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "key:k1", 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, res.RetryAfter)

	assert.True(t, mr.Exists("agentfed:ratelimit:key:k1"))

	mr.FastForward(time.Minute)
	res, err = l.Allow(ctx, "key:k1", 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	l, mr := newRedisLimiter(t, time.Minute)

	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	other, err := cache.NewManager(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	peer := NewRedisLimiter(other, time.Minute, "")

	ctx := context.Background()
	res, err := l.Allow(ctx, "key:shared", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = peer.Allow(ctx, "key:shared", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRedisLimiter_BackendError(t *testing.T) {
	l, mr := newRedisLimiter(t, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "key:k1", 3)
	assert.Error(t, err)

	res, err := l.Allow(context.Background(), "key:k1", 0)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

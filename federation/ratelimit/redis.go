package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// WindowCounter 共享窗口计数，*cache.Manager 实现该接口。
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisLimiter 多实例共享计数的固定窗口限流器
type RedisLimiter struct {
	counter WindowCounter
	window  time.Duration
	prefix  string
	now     func() time.Time
}

// NewRedisLimiter 创建 Redis 限流器。
func NewRedisLimiter(counter WindowCounter, windowLen time.Duration, prefix string) *RedisLimiter {
	if windowLen <= 0 {
		windowLen = DefaultWindow
	}
	if prefix == "" {
		prefix = "agentfed:ratelimit:"
	}
	return &RedisLimiter{counter: counter, window: windowLen, prefix: prefix, now: time.Now}
}

// Allow 对 callerKey 计数一次。
func (l *RedisLimiter) Allow(ctx context.Context, callerKey string, maxPerWindow int) (Result, error) {
	if maxPerWindow <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	count, ttl, err := l.counter.IncrWindow(ctx, l.prefix+callerKey, l.window)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", callerKey, err)
	}

	resetAt := l.now().Add(ttl)
	if count > int64(maxPerWindow) {
		return Result{Allowed: false, Remaining: 0, RetryAfter: l.window, ResetAt: resetAt}, nil
	}
	return Result{Allowed: true, Remaining: maxPerWindow - int(count), ResetAt: resetAt}, nil
}

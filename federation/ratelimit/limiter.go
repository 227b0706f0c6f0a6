package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow 默认窗口长度
const DefaultWindow = 60 * time.Second

// Result 一次限流判定
type Result struct {
	Allowed bool
	// Remaining 窗口内剩余次数，不限流时为 -1
	Remaining int
	// RetryAfter 被拒绝时的重试提示
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter 调用方限流器。maxPerWindow 非正数表示不限。
type Limiter interface {
	Allow(ctx context.Context, callerKey string, maxPerWindow int) (Result, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter 进程内固定窗口限流器
type MemoryLimiter struct {
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

// MemoryOption 内存限流器选项
type MemoryOption func(*MemoryLimiter)

// WithClock 注入时钟。
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter 创建内存限流器。
func NewMemoryLimiter(windowLen time.Duration, opts ...MemoryOption) *MemoryLimiter {
	if windowLen <= 0 {
		windowLen = DefaultWindow
	}
	l := &MemoryLimiter{
		window:  windowLen,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow 对 callerKey 计数一次。
func (l *MemoryLimiter) Allow(_ context.Context, callerKey string, maxPerWindow int) (Result, error) {
	if maxPerWindow <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !now.Before(l.nextSweep) {
		l.sweepLocked(now)
	}

	w, ok := l.windows[callerKey]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.windows[callerKey] = w
	}
	w.count++

	if w.count > maxPerWindow {
		return Result{Allowed: false, Remaining: 0, RetryAfter: l.window, ResetAt: w.resetAt}, nil
	}
	return Result{Allowed: true, Remaining: maxPerWindow - w.count, ResetAt: w.resetAt}, nil
}

// Sweep 删除已过期的窗口。
func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(l.now())
}

// Len 返回当前跟踪的调用方数量。
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	l.nextSweep = now.Add(l.window)
}

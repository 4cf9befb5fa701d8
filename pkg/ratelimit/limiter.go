package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 令牌桶限流器，按每分钟请求数限制LLM接口的调用频率
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // 每秒补充的令牌数
	burst      float64 // 桶容量
	tokens     float64
	lastRefill time.Time
}

// NewLimiter 创建限流器。qpm为每分钟允许的请求数，
// burst不大于0时取qpm的一半，最小为1。
func NewLimiter(qpm int, burst int) *Limiter {
	if qpm <= 0 {
		qpm = 60
	}
	if burst <= 0 {
		burst = qpm / 2
		if burst <= 0 {
			burst = 1
		}
	}
	return &Limiter{
		rate:       float64(qpm) / 60.0,
		burst:      float64(burst),
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.lastRefill = now

	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}

// Allow 尝试消耗一个令牌，无令牌时立即返回false
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1.0 {
		l.tokens--
		return true
	}
	return false
}

// Wait 阻塞直到拿到令牌或上下文被取消
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1.0 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1.0 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

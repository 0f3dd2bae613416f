package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenLimiter enforces a tokens-per-minute budget for LLM API calls.
// The window resets a minute after the first consumption in that window.
type TokenLimiter struct {
	mu          sync.Mutex
	maxPerMin   int
	used        int
	windowStart time.Time
}

// NewTokenLimiter creates a limiter with the given per-minute token budget.
func NewTokenLimiter(maxPerMinute int) *TokenLimiter {
	return &TokenLimiter{maxPerMin: maxPerMinute}
}

// Wait blocks until the given number of tokens fits in the current window,
// or the context is cancelled.
func (t *TokenLimiter) Wait(ctx context.Context, tokens int) error {
	for {
		t.mu.Lock()
		now := time.Now()
		if t.windowStart.IsZero() || now.Sub(t.windowStart) >= time.Minute {
			t.windowStart = now
			t.used = 0
		}
		if t.used+tokens <= t.maxPerMin {
			t.used += tokens
			t.mu.Unlock()
			return nil
		}
		wait := time.Minute - now.Sub(t.windowStart)
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// GetRemaining returns the number of tokens left in the current window.
func (t *TokenLimiter) GetRemaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.windowStart.IsZero() || time.Since(t.windowStart) >= time.Minute {
		return t.maxPerMin
	}
	return t.maxPerMin - t.used
}

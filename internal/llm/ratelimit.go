package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCooldown is how long all callers pause after the provider reports
// a rate limit.
const DefaultCooldown = 5 * time.Second

// RateLimiter throttles calls proactively with a token bucket and pauses
// every caller for a cooldown after the provider reports a rate limit.
type RateLimiter struct {
	mu           sync.Mutex
	bucket       *rate.Limiter
	cooldown     time.Duration
	blockedUntil time.Time
}

// NewRateLimiter allows rps calls per second with the given burst. A
// non-positive rps disables proactive throttling.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		bucket:   rate.NewLimiter(limit, burst),
		cooldown: DefaultCooldown,
	}
}

// Wait blocks until it's safe to make a request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	// 1. Reactive pause after a provider rate limit
	r.mu.Lock()
	until := r.blockedUntil
	r.mu.Unlock()

	if wait := time.Until(until); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	// 2. Proactive token bucket
	return r.bucket.Wait(ctx)
}

// RecordRateLimitError starts a cooldown shared by all callers.
func (r *RateLimiter) RecordRateLimitError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := time.Now().Add(r.cooldown); until.After(r.blockedUntil) {
		r.blockedUntil = until
	}
}

// Limited wraps a completer so every call passes through the limiter.
func Limited(next Completer, limiter *RateLimiter) Completer {
	return CompleterFunc(func(ctx context.Context, p Prompt) (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
		out, err := next.Complete(ctx, p)
		if errors.Is(err, ErrRateLimited) {
			limiter.RecordRateLimitError()
		}
		return out, err
	})
}

package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces consecutive requests against the same site. Wait blocks
// until enough time has passed since the previous action.
type Limiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleLimiter enforces a jittered delay between actions.
type SimpleLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewSimpleLimiter(minDelay, maxDelay time.Duration) *SimpleLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimpleLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (r *SimpleLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.nextDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

func (r *SimpleLimiter) nextDelay() time.Duration {
	if r.minDelay >= r.maxDelay {
		return r.minDelay
	}
	return r.minDelay + time.Duration(rand.Int63n(int64(r.maxDelay-r.minDelay)))
}

// AdaptiveLimiter stretches the delay window after repeated failures and
// slowly relaxes it again while requests keep succeeding.
type AdaptiveLimiter struct {
	*SimpleLimiter
	errorCount   int
	successCount int
	errorCeiling int
	growthFactor float64
}

func NewAdaptiveLimiter(minDelay, maxDelay time.Duration) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		SimpleLimiter: NewSimpleLimiter(minDelay, maxDelay),
		errorCeiling:  3,
		growthFactor:  1.5,
	}
}

func (a *AdaptiveLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		relaxed := time.Duration(float64(a.minDelay) * 0.9)
		if relaxed < time.Second {
			relaxed = time.Second
		}
		a.minDelay = relaxed
		a.successCount = 0
	}
}

func (a *AdaptiveLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.errorCeiling {
		a.minDelay = capDelay(time.Duration(float64(a.minDelay)*a.growthFactor), 60*time.Second)
		a.maxDelay = capDelay(time.Duration(float64(a.maxDelay)*a.growthFactor), 120*time.Second)
		a.errorCount = 0
	}
}

func capDelay(d, ceiling time.Duration) time.Duration {
	if d > ceiling {
		return ceiling
	}
	return d
}

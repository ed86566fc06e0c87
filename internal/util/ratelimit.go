package util

import (
	"sync"
	"time"
)

// RateLimiter implements a token-bucket rate limiter that replenishes tokens
// at a fixed rate. A nil RateLimiter allows everything.
type RateLimiter struct {
	rate     float64 // tokens per second
	burst    float64
	tokens   float64
	lastTime time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute with no burst. A non-positive perMinute returns nil.
func NewRateLimiter(perMinute int) *RateLimiter {
	return NewRateLimiterBurst(perMinute, 1)
}

// NewRateLimiterBurst is NewRateLimiter with up to burst operations
// available at once. The bucket starts full.
func NewRateLimiterBurst(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:     float64(perMinute) / 60.0,
		burst:    float64(burst),
		tokens:   float64(burst),
		lastTime: time.Now(),
	}
}

// Allow consumes a token if one is available and reports whether it did.
// It never blocks. A nil RateLimiter always allows.
func (rl *RateLimiter) Allow() bool {
	if rl == nil {
		return true
	}
	_, ok := rl.take()
	return ok
}

// take consumes a token if one is available; otherwise it reports how long
// until the next one.
func (rl *RateLimiter) take() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens = min(rl.tokens+now.Sub(rl.lastTime).Seconds()*rl.rate, rl.burst)
	rl.lastTime = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	need := (1 - rl.tokens) / rl.rate
	return max(time.Duration(need*float64(time.Second)), 10*time.Millisecond), false
}

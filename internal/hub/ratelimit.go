package hub

import (
	"sync"
	"time"
)

// tokenBucket is a per-connection local rate limiter for chat/typing
// events — spec requires no cross-process coordination for these, so the
// bucket lives entirely in connection memory.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	max        float64
	refillRate float64 // tokens per second
	last       time.Time
}

func newTokenBucket(max float64, window time.Duration) *tokenBucket {
	return &tokenBucket{
		tokens:     max,
		max:        max,
		refillRate: max / window.Seconds(),
		last:       time.Now(),
	}
}

// Allow reports whether one token is available, consuming it if so.
func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.max {
		b.tokens = b.max
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

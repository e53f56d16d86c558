// Package ratelimit implements the per-agent token bucket used to gate
// assistant invocations.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket with lazy refill. Tokens are replenished on each
// consumption attempt based on the number of whole refill windows that have
// elapsed since the last refill; the refill timestamp advances only by those
// whole windows so that fractional elapsed time is never lost between calls.
//
// Invariant: 0 <= tokens <= capacity.
type Bucket struct {
	mu sync.Mutex

	capacity        int
	refillPerWindow int
	window          time.Duration

	tokens     int
	lastRefill time.Time

	now func() time.Time
}

// Option customizes a Bucket.
type Option func(*Bucket)

// WithClock overrides the time source. Used by tests to drive refill without
// real waits.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) { b.now = now }
}

// WithInitialTokens sets the starting token count instead of a full bucket.
func WithInitialTokens(n int) Option {
	return func(b *Bucket) { b.tokens = n }
}

// NewBucket creates a bucket that grants capacity tokens at most, refilling
// refillPerWindow tokens every window. The bucket starts full.
func NewBucket(capacity, refillPerWindow int, window time.Duration, optFns ...Option) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	b := &Bucket{
		capacity:        capacity,
		refillPerWindow: refillPerWindow,
		window:          window,
		tokens:          capacity,
		now:             time.Now,
	}
	for _, fn := range optFns {
		fn(b)
	}
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = b.now()
	return b
}

// TryConsume attempts to take n tokens. It returns true and decrements the
// bucket when enough tokens are available after lazy refill; otherwise it
// returns false and leaves the bucket unchanged. Exhaustion is a normal
// outcome, not an error.
func (b *Bucket) TryConsume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Remaining reports the token count after applying any pending refill.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

// refillLocked applies the lazy refill rule. lastRefill advances only by the
// whole windows consumed, never snapped to now, to avoid refill drift.
func (b *Bucket) refillLocked() {
	if b.window <= 0 || b.refillPerWindow <= 0 {
		return
	}
	elapsed := b.now().Sub(b.lastRefill)
	windows := int(elapsed / b.window)
	if windows <= 0 {
		return
	}
	b.tokens += windows * b.refillPerWindow
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(windows) * b.window)
}

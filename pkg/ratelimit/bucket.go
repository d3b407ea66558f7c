package ratelimit

import (
	"time"

	"tollgate-hq/tollgate/pkg/ratelimit/storage"
)

// Bucket holds the token bucket state for one limiter key.
//
// Tokens are credited lazily: Refill computes the credit from elapsed time
// since the last refill, capped at capacity. Fractional tokens are kept so
// slow refill rates accumulate precisely.
//
// Bucket is not self-synchronized. The Registry serializes all access so
// that refill, consume and persist form one critical section per key.
type Bucket struct {
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
}

// NewBucket creates a full bucket.
func NewBucket(capacity, refillRate float64, now time.Time) *Bucket {
	return &Bucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity, // Start with full bucket
		lastRefill: now,
	}
}

// BucketFromState restores a bucket from its persisted state.
func BucketFromState(state storage.BucketState) *Bucket {
	return &Bucket{
		capacity:   state.Capacity,
		refillRate: state.RefillRate,
		tokens:     state.Tokens,
		lastRefill: state.LastRefill,
	}
}

// State returns the persistable form of the bucket.
func (b *Bucket) State() storage.BucketState {
	return storage.BucketState{
		Capacity:   b.capacity,
		RefillRate: b.refillRate,
		Tokens:     b.tokens,
		LastRefill: b.lastRefill,
	}
}

// Refill credits tokens proportional to elapsed time since the last refill,
// capped at capacity, and advances lastRefill to now. Calling it twice with
// the same now changes state only on the first call.
//
// If now is before lastRefill the elapsed time is clamped to zero rather
// than negative and lastRefill is left untouched, so the refill timestamp
// never moves backward. Returns true when such clock skew was observed.
func (b *Bucket) Refill(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < 0 {
		return true
	}
	if elapsed == 0 {
		return false
	}

	b.tokens += elapsed.Seconds() * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
	return false
}

// TryConsume removes n tokens if at least n are available.
// Returns false and leaves the bucket unchanged otherwise.
// Callers must apply Refill for the current timestamp first.
func (b *Bucket) TryConsume(n float64) bool {
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Reset restores the bucket to full capacity.
func (b *Bucket) Reset(now time.Time) {
	b.tokens = b.capacity
	b.lastRefill = now
}

// Reconfigure updates capacity and refill rate in place. The current token
// count is clamped to the new capacity, never reset, so an in-flight budget
// survives reconfiguration.
func (b *Bucket) Reconfigure(capacity, refillRate float64) {
	b.capacity = capacity
	b.refillRate = refillRate
	if b.tokens > capacity {
		b.tokens = capacity
	}
}

// Available returns the token count the bucket would hold after a refill
// at now, without mutating any state. Used for status reporting so stale
// counts are never shown.
func (b *Bucket) Available(now time.Time) float64 {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return b.tokens
	}
	tokens := b.tokens + elapsed.Seconds()*b.refillRate
	if tokens > b.capacity {
		tokens = b.capacity
	}
	return tokens
}

// Tokens returns the current token count without refill arithmetic.
func (b *Bucket) Tokens() float64 { return b.tokens }

// Capacity returns the maximum token count.
func (b *Bucket) Capacity() float64 { return b.capacity }

// RefillRate returns the tokens credited per second.
func (b *Bucket) RefillRate() float64 { return b.refillRate }

// LastRefill returns when tokens were last credited.
func (b *Bucket) LastRefill() time.Time { return b.lastRefill }

// RetryAfter returns how long until one token will be available, assuming
// no further consumption. Returns 0 if a token is available now or the
// bucket never refills.
func (b *Bucket) RetryAfter(now time.Time) time.Duration {
	available := b.Available(now)
	if available >= 1 || b.refillRate <= 0 {
		return 0
	}
	secondsNeeded := (1 - available) / b.refillRate
	return time.Duration(secondsNeeded * float64(time.Second))
}

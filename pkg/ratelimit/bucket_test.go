package ratelimit

import (
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBucket_StartsFull(t *testing.T) {
	b := NewBucket(10, 1, baseTime)

	if b.Tokens() != 10 {
		t.Errorf("expected new bucket to hold 10 tokens, got %v", b.Tokens())
	}
	if b.Capacity() != 10 {
		t.Errorf("expected capacity 10, got %v", b.Capacity())
	}
}

func TestBucket_RefillProportionalToElapsed(t *testing.T) {
	b := NewBucket(10, 1, baseTime) // 10 capacity, 1 token/sec

	// Drain completely.
	for i := 0; i < 10; i++ {
		if !b.TryConsume(1) {
			t.Fatalf("consume %d failed on full bucket", i)
		}
	}
	if b.Tokens() != 0 {
		t.Fatalf("expected empty bucket, got %v tokens", b.Tokens())
	}

	// Exactly 5 seconds credits exactly 5 tokens.
	b.Refill(baseTime.Add(5 * time.Second))
	if b.Tokens() != 5 {
		t.Errorf("expected 5 tokens after 5s at 1 token/sec, got %v", b.Tokens())
	}

	// Any longer interval caps at capacity.
	b.Refill(baseTime.Add(time.Hour))
	if b.Tokens() != 10 {
		t.Errorf("expected refill capped at capacity 10, got %v", b.Tokens())
	}
}

func TestBucket_RefillIdempotentForSameTimestamp(t *testing.T) {
	b := NewBucket(10, 2, baseTime)
	b.TryConsume(6)

	now := baseTime.Add(time.Second)
	b.Refill(now)
	after := b.Tokens()

	// Second refill with the same timestamp has elapsed = 0.
	b.Refill(now)
	if b.Tokens() != after {
		t.Errorf("second refill at same timestamp changed tokens: %v -> %v", after, b.Tokens())
	}
	if !b.LastRefill().Equal(now) {
		t.Errorf("expected last refill %v, got %v", now, b.LastRefill())
	}
}

func TestBucket_ClockSkewClampsElapsed(t *testing.T) {
	b := NewBucket(10, 1, baseTime)
	b.TryConsume(5)

	skewed := b.Refill(baseTime.Add(-time.Minute))
	if !skewed {
		t.Error("expected skew to be reported for a backwards timestamp")
	}
	if b.Tokens() != 5 {
		t.Errorf("expected tokens unchanged under clock skew, got %v", b.Tokens())
	}
	if !b.LastRefill().Equal(baseTime) {
		t.Errorf("last refill moved backward to %v", b.LastRefill())
	}
}

func TestBucket_ConsumeExact(t *testing.T) {
	b := NewBucket(10, 0, baseTime)
	b.tokens = 1

	if !b.TryConsume(1) {
		t.Fatal("expected consume to succeed with exactly 1 token")
	}
	if b.Tokens() != 0 {
		t.Errorf("expected 0 tokens after consume, got %v", b.Tokens())
	}
	if b.TryConsume(1) {
		t.Error("expected consume to fail on empty bucket")
	}
	if b.Tokens() != 0 {
		t.Errorf("failed consume changed tokens to %v", b.Tokens())
	}
}

func TestBucket_InvariantHeldAcrossOperations(t *testing.T) {
	b := NewBucket(3, 10, baseTime)

	now := baseTime
	for i := 0; i < 50; i++ {
		now = now.Add(137 * time.Millisecond)
		b.Refill(now)
		b.TryConsume(1)

		if b.Tokens() < 0 || b.Tokens() > b.Capacity() {
			t.Fatalf("invariant violated at step %d: tokens=%v capacity=%v",
				i, b.Tokens(), b.Capacity())
		}
	}
}

func TestBucket_ReconfigurePreservesBudget(t *testing.T) {
	b := NewBucket(10, 1, baseTime)
	b.TryConsume(2) // tokens = 8

	// Shrinking capacity clamps tokens.
	b.Reconfigure(5, 1)
	if b.Tokens() != 5 {
		t.Errorf("expected tokens clamped to 5, got %v", b.Tokens())
	}

	// Growing capacity keeps the in-flight budget, never refills.
	b.Reconfigure(10, 1)
	b.TryConsume(0) // no-op, just exercise state
	b.Reconfigure(20, 1)
	if b.Tokens() != 5 {
		t.Errorf("expected tokens to stay at 5 after growing capacity, got %v", b.Tokens())
	}
}

func TestBucket_Reset(t *testing.T) {
	b := NewBucket(10, 1, baseTime)
	b.TryConsume(7)

	resetAt := baseTime.Add(time.Minute)
	b.Reset(resetAt)

	if b.Tokens() != 10 {
		t.Errorf("expected full bucket after reset, got %v", b.Tokens())
	}
	if !b.LastRefill().Equal(resetAt) {
		t.Errorf("expected last refill %v after reset, got %v", resetAt, b.LastRefill())
	}
}

func TestBucket_AvailableDoesNotMutate(t *testing.T) {
	b := NewBucket(10, 1, baseTime)
	b.TryConsume(10)

	later := baseTime.Add(4 * time.Second)
	if got := b.Available(later); got != 4 {
		t.Errorf("expected 4 tokens available after 4s, got %v", got)
	}
	if b.Tokens() != 0 {
		t.Errorf("Available mutated tokens to %v", b.Tokens())
	}
	if !b.LastRefill().Equal(baseTime) {
		t.Errorf("Available mutated last refill to %v", b.LastRefill())
	}
}

func TestBucket_RetryAfter(t *testing.T) {
	b := NewBucket(10, 2, baseTime)
	b.TryConsume(10)

	// Empty bucket at 2 tokens/sec needs 500ms for one token.
	if got := b.RetryAfter(baseTime); got != 500*time.Millisecond {
		t.Errorf("expected retry after 500ms, got %v", got)
	}

	// A bucket that never refills reports zero.
	frozen := NewBucket(5, 0, baseTime)
	frozen.TryConsume(5)
	if got := frozen.RetryAfter(baseTime); got != 0 {
		t.Errorf("expected 0 retry for zero refill rate, got %v", got)
	}
}

func TestBucket_StateRoundTrip(t *testing.T) {
	b := NewBucket(10, 1.5, baseTime)
	b.TryConsume(3)

	restored := BucketFromState(b.State())
	if restored.Tokens() != b.Tokens() ||
		restored.Capacity() != b.Capacity() ||
		restored.RefillRate() != b.RefillRate() ||
		!restored.LastRefill().Equal(b.LastRefill()) {
		t.Errorf("restored bucket differs: %+v vs %+v", restored.State(), b.State())
	}
}

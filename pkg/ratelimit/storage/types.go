package storage

import (
	"context"
	"fmt"
	"time"
)

// Limit is the persisted rate limit configuration for one tool.
type Limit struct {
	// Capacity is the maximum number of tokens the bucket can hold.
	Capacity float64 `json:"capacity" yaml:"capacity"`

	// RefillRate is the number of tokens credited per second.
	RefillRate float64 `json:"refill_rate" yaml:"refill_rate"`
}

// Validate checks that the limit is well formed.
// Capacity must be positive; refill rate must be non-negative
// (a zero rate means the bucket never refills on its own).
func (l Limit) Validate() error {
	if l.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %v", l.Capacity)
	}
	if l.RefillRate < 0 {
		return fmt.Errorf("refill rate must be non-negative, got %v", l.RefillRate)
	}
	return nil
}

// BucketState is the persisted token bucket state for one limiter key.
type BucketState struct {
	// Capacity is the maximum number of tokens.
	Capacity float64 `json:"capacity"`

	// RefillRate is the number of tokens credited per second.
	RefillRate float64 `json:"refill_rate"`

	// Tokens is the current token count. Always within [0, Capacity].
	Tokens float64 `json:"tokens"`

	// LastRefill is when tokens were last credited.
	LastRefill time.Time `json:"last_refill"`
}

// Validate checks that the state is well formed.
func (s BucketState) Validate() error {
	if err := (Limit{Capacity: s.Capacity, RefillRate: s.RefillRate}).Validate(); err != nil {
		return err
	}
	if s.Tokens < 0 || s.Tokens > s.Capacity {
		return fmt.Errorf("tokens %v outside [0, %v]", s.Tokens, s.Capacity)
	}
	return nil
}

// Backend defines the interface for limiter persistence.
// Implementations must be thread-safe.
type Backend interface {
	// LoadLimits returns the limit configuration for all tools.
	// Returns an empty map if nothing is configured. Malformed records
	// are rejected with an error, never silently defaulted.
	LoadLimits(ctx context.Context) (map[string]Limit, error)

	// SaveLimits persists the full limit configuration.
	SaveLimits(ctx context.Context, limits map[string]Limit) error

	// LoadState returns the bucket state for all limiter keys.
	// Returns an empty map if no state exists.
	LoadState(ctx context.Context) (map[string]BucketState, error)

	// SaveState persists the bucket state for a single key.
	// Existing state for the key is replaced.
	SaveState(ctx context.Context, key string, state BucketState) error

	// SaveAll replaces the entire persisted bucket state.
	// Used by bulk reset.
	SaveAll(ctx context.Context, states map[string]BucketState) error

	// DeleteState removes the bucket state for a key.
	// No-op if the key has no state.
	DeleteState(ctx context.Context, key string) error

	// Cleanup removes bucket state whose last refill is older than the
	// cutoff. Returns the number of entries removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases resources held by the backend.
	Close() error
}

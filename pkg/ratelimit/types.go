package ratelimit

import "time"

// Decision is the outcome of a rate limit check. A denied check is a
// normal, successful outcome, not an error.
type Decision struct {
	// Allowed reports whether the invocation may proceed.
	Allowed bool `json:"allowed"`

	// Key is the limiter key the decision was made against.
	Key string `json:"key"`

	// Remaining is the token count left after the check.
	Remaining float64 `json:"remaining"`

	// RetryAfter is how long until one token will be available.
	// Zero when the check was allowed or the bucket never refills.
	RetryAfter time.Duration `json:"retry_after"`
}

// Snapshot is a read-only view of one bucket for status reporting.
// Tokens reflects a virtual refill to the snapshot time; taking a
// snapshot never alters persisted state.
type Snapshot struct {
	Key        string    `json:"key"`
	Tool       string    `json:"tool"`
	User       string    `json:"user,omitempty"`
	Tokens     float64   `json:"tokens"`
	Capacity   float64   `json:"capacity"`
	RefillRate float64   `json:"refill_rate"`
	LastRefill time.Time `json:"last_refill"`
}

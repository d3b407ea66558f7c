package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-memory maps.
// All data is lost when the process exits. Useful for tests and for
// serve-mode deployments that do not need durability.
//
// MemoryBackend is thread-safe using sync.RWMutex.
type MemoryBackend struct {
	limits map[string]Limit
	states map[string]BucketState
	mu     sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		limits: make(map[string]Limit),
		states: make(map[string]BucketState),
	}
}

// LoadLimits returns a copy of the limit configuration for all tools.
func (m *MemoryBackend) LoadLimits(ctx context.Context) (map[string]Limit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limits := make(map[string]Limit, len(m.limits))
	for tool, limit := range m.limits {
		limits[tool] = limit
	}
	return limits, nil
}

// SaveLimits replaces the stored limit configuration.
func (m *MemoryBackend) SaveLimits(ctx context.Context, limits map[string]Limit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limits = make(map[string]Limit, len(limits))
	for tool, limit := range limits {
		m.limits[tool] = limit
	}
	return nil
}

// LoadState returns a copy of the bucket state for all limiter keys.
func (m *MemoryBackend) LoadState(ctx context.Context) (map[string]BucketState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]BucketState, len(m.states))
	for key, state := range m.states {
		states[key] = state
	}
	return states, nil
}

// SaveState stores the bucket state for a single key.
func (m *MemoryBackend) SaveState(ctx context.Context, key string, state BucketState) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid state for %q: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[key] = state
	return nil
}

// SaveAll replaces the entire stored bucket state.
func (m *MemoryBackend) SaveAll(ctx context.Context, states map[string]BucketState) error {
	for key, state := range states {
		if err := state.Validate(); err != nil {
			return fmt.Errorf("refusing to save invalid state for %q: %w", key, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states = make(map[string]BucketState, len(states))
	for key, state := range states {
		m.states[key] = state
	}
	return nil
}

// DeleteState removes the bucket state for a key.
func (m *MemoryBackend) DeleteState(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, key)
	return nil
}

// Cleanup removes bucket state whose last refill is older than the cutoff.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, state := range m.states {
		if state.LastRefill.Before(olderThan) {
			delete(m.states, key)
			deleted++
		}
	}
	return deleted, nil
}

// Close releases resources held by the backend.
func (m *MemoryBackend) Close() error { return nil }

// Size returns the current number of stored bucket states.
// Useful for monitoring and testing.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

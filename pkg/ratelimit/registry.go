package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"tollgate-hq/tollgate/pkg/ratelimit/storage"
)

// Registry owns all buckets and the per-tool limit configuration.
//
// Every mutating operation runs under a single mutex, so the composed
// refill+consume+persist sequence for a key is a critical section: at most
// one in-flight mutation per key, no lost updates. A check either completes
// and persists, or reports an error without persisting.
type Registry struct {
	store   storage.Backend
	clock   Clock
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	limits  map[string]storage.Limit
	buckets map[string]*Bucket
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Storage is the persistence backend. Required.
	Storage storage.Backend

	// Clock supplies timestamps. Default: SystemClock.
	Clock Clock

	// Logger receives structured log output. Default: slog.Default.
	Logger *slog.Logger

	// Metrics receives check counters and gauges. Optional.
	Metrics *Metrics
}

// NewRegistry creates a registry and loads limit configuration and bucket
// state from the storage backend.
func NewRegistry(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	limits, err := cfg.Storage.LoadLimits(ctx)
	if err != nil {
		return nil, NewStorageError("load limits", err)
	}
	states, err := cfg.Storage.LoadState(ctx)
	if err != nil {
		return nil, NewStorageError("load state", err)
	}

	buckets := make(map[string]*Bucket, len(states))
	for key, state := range states {
		buckets[key] = BucketFromState(state)
	}

	return &Registry{
		store:   cfg.Storage,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("component", "ratelimit.registry"),
		metrics: cfg.Metrics,
		limits:  limits,
		buckets: buckets,
	}, nil
}

// SetLimit upserts the rate limit configuration for a tool.
//
// Existing buckets derived from the tool are updated in place: their token
// count is clamped to the new capacity, never reset, so an in-flight budget
// survives reconfiguration.
func (r *Registry) SetLimit(ctx context.Context, tool string, capacity, refillRate float64) error {
	if err := ValidateName("tool", tool); err != nil {
		return err
	}
	if capacity <= 0 {
		return NewConfigError("capacity", fmt.Sprintf("must be positive, got %v", capacity))
	}
	if refillRate < 0 {
		return NewConfigError("refill_rate", fmt.Sprintf("must be non-negative, got %v", refillRate))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, hadPrev := r.limits[tool]
	r.limits[tool] = storage.Limit{Capacity: capacity, RefillRate: refillRate}

	if err := r.store.SaveLimits(ctx, r.limits); err != nil {
		if hadPrev {
			r.limits[tool] = prev
		} else {
			delete(r.limits, tool)
		}
		return NewStorageError("save limits", err)
	}

	// Clamp every existing bucket derived from the tool and persist it.
	for key, bucket := range r.buckets {
		if !keyBelongsTo(key, tool) {
			continue
		}
		bucket.Reconfigure(capacity, refillRate)
		if err := r.store.SaveState(ctx, key, bucket.State()); err != nil {
			return NewStorageError("save state", err)
		}
	}

	r.logger.Info("limit configured",
		"tool", tool,
		"capacity", capacity,
		"refill_rate", refillRate,
	)
	return nil
}

// Check decides whether one invocation of tool by user may proceed.
//
// The tool must have a configured limit; otherwise ErrUnknownTool is
// returned and the check is denied by default. The bucket is created full
// on first use, refilled for the current timestamp, and one token is
// consumed if available. The updated state is persisted before the decision
// is reported; on a persistence failure the consumption is rolled back and
// the error is returned instead of an ALLOWED result.
//
// A denied check is a normal outcome: Decision.Allowed is false and the
// returned error is nil.
func (r *Registry) Check(ctx context.Context, tool, user string) (*Decision, error) {
	if err := ValidateName("tool", tool); err != nil {
		return nil, err
	}
	if user != "" {
		if err := ValidateName("user", user); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordCheckDuration(time.Since(start).Seconds())
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	limit, ok := r.limits[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}

	key := MakeKey(tool, user)
	bucket := r.getOrCreateLocked(key, limit)

	now := r.clock.Now()
	prev := *bucket
	if bucket.Refill(now) {
		r.logger.Warn("clock skew detected, treating elapsed time as zero",
			"key", key,
			"now", now,
			"last_refill", bucket.LastRefill(),
		)
	}
	allowed := bucket.TryConsume(1)

	if err := r.store.SaveState(ctx, key, bucket.State()); err != nil {
		*bucket = prev
		return nil, NewStorageError("save state", err)
	}

	if r.metrics != nil {
		r.metrics.RecordCheck(tool, allowed)
		r.metrics.UpdateBucketTokens(key, bucket.Tokens())
	}

	decision := &Decision{
		Allowed:   allowed,
		Key:       key,
		Remaining: bucket.Tokens(),
	}
	if !allowed {
		decision.RetryAfter = bucket.RetryAfter(now)
	}
	return decision, nil
}

// Status returns read-only snapshots of buckets. With an empty tool it
// covers every known bucket plus configured tools that have no state yet
// (shown at full capacity). With a tool it covers that tool's buckets, and
// with a user the single derived key. Token counts reflect a virtual refill
// to the current time; persisted state is never altered.
func (r *Registry) Status(ctx context.Context, tool, user string) ([]Snapshot, error) {
	if tool != "" {
		if err := ValidateName("tool", tool); err != nil {
			return nil, err
		}
	}
	if user != "" {
		if err := ValidateName("user", user); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	if tool == "" {
		var snapshots []Snapshot
		for key, bucket := range r.buckets {
			snapshots = append(snapshots, r.snapshotLocked(key, bucket, now))
		}
		for t, limit := range r.limits {
			if !r.hasBucketForLocked(t) {
				snapshots = append(snapshots, virtualSnapshot(t, limit))
			}
		}
		sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Key < snapshots[j].Key })
		return snapshots, nil
	}

	limit, ok := r.limits[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}

	if user != "" {
		key := MakeKey(tool, user)
		if bucket, exists := r.buckets[key]; exists {
			return []Snapshot{r.snapshotLocked(key, bucket, now)}, nil
		}
		snap := virtualSnapshot(tool, limit)
		snap.Key = key
		snap.User = user
		return []Snapshot{snap}, nil
	}

	var snapshots []Snapshot
	for key, bucket := range r.buckets {
		if keyBelongsTo(key, tool) {
			snapshots = append(snapshots, r.snapshotLocked(key, bucket, now))
		}
	}
	if len(snapshots) == 0 {
		snapshots = append(snapshots, virtualSnapshot(tool, limit))
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Key < snapshots[j].Key })
	return snapshots, nil
}

// Reset restores buckets to full capacity and persists the result.
// With an empty tool every bucket is reset and saved in bulk. With a tool
// (and optional user) the single derived bucket is reset, created first if
// the tool is configured but has no state yet.
func (r *Registry) Reset(ctx context.Context, tool, user string) error {
	if tool == "" {
		r.mu.Lock()
		defer r.mu.Unlock()

		now := r.clock.Now()
		states := make(map[string]storage.BucketState, len(r.buckets))
		for key, bucket := range r.buckets {
			bucket.Reset(now)
			states[key] = bucket.State()
		}
		if err := r.store.SaveAll(ctx, states); err != nil {
			return NewStorageError("save all", err)
		}
		r.logger.Info("all buckets reset", "count", len(states))
		return nil
	}

	if err := ValidateName("tool", tool); err != nil {
		return err
	}
	if user != "" {
		if err := ValidateName("user", user); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	limit, ok := r.limits[tool]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}

	key := MakeKey(tool, user)
	bucket := r.getOrCreateLocked(key, limit)
	bucket.Reset(r.clock.Now())

	if err := r.store.SaveState(ctx, key, bucket.State()); err != nil {
		return NewStorageError("save state", err)
	}
	r.logger.Info("bucket reset", "key", key)
	return nil
}

// ReloadLimits re-reads the limit configuration from storage and applies it
// to existing buckets, clamping token counts where capacity shrank. Used by
// serve mode when the limits file changes on disk.
func (r *Registry) ReloadLimits(ctx context.Context) error {
	limits, err := r.store.LoadLimits(ctx)
	if err != nil {
		return NewStorageError("load limits", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.limits = limits
	for key, bucket := range r.buckets {
		tool, _ := SplitKey(key)
		if limit, ok := limits[tool]; ok {
			bucket.Reconfigure(limit.Capacity, limit.RefillRate)
		}
	}

	r.logger.Info("limits reloaded", "tools", len(limits))
	return nil
}

// Limits returns a copy of the current limit configuration.
func (r *Registry) Limits() map[string]storage.Limit {
	r.mu.Lock()
	defer r.mu.Unlock()

	limits := make(map[string]storage.Limit, len(r.limits))
	for tool, limit := range r.limits {
		limits[tool] = limit
	}
	return limits
}

// Close releases the storage backend.
func (r *Registry) Close() error {
	return r.store.Close()
}

// getOrCreateLocked returns the bucket for key, creating it full on first
// use. Existing buckets are synced to the current limit so hand-edited
// configuration takes effect without a restart. Caller must hold the lock.
func (r *Registry) getOrCreateLocked(key string, limit storage.Limit) *Bucket {
	if bucket, exists := r.buckets[key]; exists {
		bucket.Reconfigure(limit.Capacity, limit.RefillRate)
		return bucket
	}
	bucket := NewBucket(limit.Capacity, limit.RefillRate, r.clock.Now())
	r.buckets[key] = bucket
	return bucket
}

// hasBucketForLocked reports whether any bucket is derived from the tool.
// Caller must hold the lock.
func (r *Registry) hasBucketForLocked(tool string) bool {
	for key := range r.buckets {
		if keyBelongsTo(key, tool) {
			return true
		}
	}
	return false
}

func (r *Registry) snapshotLocked(key string, bucket *Bucket, now time.Time) Snapshot {
	tool, user := SplitKey(key)
	return Snapshot{
		Key:        key,
		Tool:       tool,
		User:       user,
		Tokens:     bucket.Available(now),
		Capacity:   bucket.Capacity(),
		RefillRate: bucket.RefillRate(),
		LastRefill: bucket.LastRefill(),
	}
}

// virtualSnapshot describes a configured tool that has no bucket state yet:
// a first check would start from a full bucket.
func virtualSnapshot(tool string, limit storage.Limit) Snapshot {
	return Snapshot{
		Key:        tool,
		Tool:       tool,
		Tokens:     limit.Capacity,
		Capacity:   limit.Capacity,
		RefillRate: limit.RefillRate,
	}
}

// keyBelongsTo reports whether a limiter key was derived from the tool.
func keyBelongsTo(key, tool string) bool {
	return key == tool || strings.HasPrefix(key, tool+KeySeparator)
}

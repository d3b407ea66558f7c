package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Default file names used when no explicit path or environment override
// is provided.
const (
	DefaultLimitsFile = "limits.json"
	DefaultStateFile  = "state.json"
)

// Environment variables that select the limits and state file locations.
const (
	EnvLimitsFile = "TOLLGATE_LIMITS_FILE"
	EnvStateFile  = "TOLLGATE_STATE_FILE"
)

// FileBackend implements Backend using two JSON files: one holding the
// per-tool limit configuration and one holding per-key bucket state.
//
// Writes are atomic: content is written to a temporary file in the same
// directory and renamed over the target, so a crashed process never leaves
// a half-written file behind.
type FileBackend struct {
	limitsPath string
	statePath  string
	mu         sync.Mutex
}

// NewFileBackend creates a file backend using the given paths.
// An empty path falls back to the corresponding environment variable
// (TOLLGATE_LIMITS_FILE, TOLLGATE_STATE_FILE) and then to the fixed
// default file name in the working directory.
func NewFileBackend(limitsPath, statePath string) *FileBackend {
	if limitsPath == "" {
		limitsPath = envOrDefault(EnvLimitsFile, DefaultLimitsFile)
	}
	if statePath == "" {
		statePath = envOrDefault(EnvStateFile, DefaultStateFile)
	}
	return &FileBackend{
		limitsPath: limitsPath,
		statePath:  statePath,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LimitsPath returns the resolved limits file path.
func (f *FileBackend) LimitsPath() string { return f.limitsPath }

// StatePath returns the resolved state file path.
func (f *FileBackend) StatePath() string { return f.statePath }

// LoadLimits returns the limit configuration for all tools.
func (f *FileBackend) LoadLimits(ctx context.Context) (map[string]Limit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLimitsLocked()
}

func (f *FileBackend) loadLimitsLocked() (map[string]Limit, error) {
	limits := make(map[string]Limit)
	if err := readJSONFile(f.limitsPath, &limits); err != nil {
		return nil, fmt.Errorf("failed to load limits from %q: %w", f.limitsPath, err)
	}
	for tool, limit := range limits {
		if tool == "" {
			return nil, fmt.Errorf("limits file %q: empty tool name", f.limitsPath)
		}
		if err := limit.Validate(); err != nil {
			return nil, fmt.Errorf("limits file %q: tool %q: %w", f.limitsPath, tool, err)
		}
	}
	return limits, nil
}

// SaveLimits persists the full limit configuration.
func (f *FileBackend) SaveLimits(ctx context.Context, limits map[string]Limit) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := writeJSONFile(f.limitsPath, limits); err != nil {
		return fmt.Errorf("failed to save limits to %q: %w", f.limitsPath, err)
	}
	return nil
}

// LoadState returns the bucket state for all limiter keys.
func (f *FileBackend) LoadState(ctx context.Context) (map[string]BucketState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadStateLocked()
}

func (f *FileBackend) loadStateLocked() (map[string]BucketState, error) {
	states := make(map[string]BucketState)
	if err := readJSONFile(f.statePath, &states); err != nil {
		return nil, fmt.Errorf("failed to load state from %q: %w", f.statePath, err)
	}
	for key, state := range states {
		if err := state.Validate(); err != nil {
			return nil, fmt.Errorf("state file %q: key %q: %w", f.statePath, key, err)
		}
	}
	return states, nil
}

// SaveState persists the bucket state for a single key.
// The whole state file is rewritten: load, update one entry, atomic rename.
func (f *FileBackend) SaveState(ctx context.Context, key string, state BucketState) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid state for %q: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	states, err := f.loadStateLocked()
	if err != nil {
		return err
	}
	states[key] = state

	if err := writeJSONFile(f.statePath, states); err != nil {
		return fmt.Errorf("failed to save state to %q: %w", f.statePath, err)
	}
	return nil
}

// SaveAll replaces the entire persisted bucket state.
func (f *FileBackend) SaveAll(ctx context.Context, states map[string]BucketState) error {
	for key, state := range states {
		if err := state.Validate(); err != nil {
			return fmt.Errorf("refusing to save invalid state for %q: %w", key, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if states == nil {
		states = map[string]BucketState{}
	}
	if err := writeJSONFile(f.statePath, states); err != nil {
		return fmt.Errorf("failed to save state to %q: %w", f.statePath, err)
	}
	return nil
}

// DeleteState removes the bucket state for a key.
func (f *FileBackend) DeleteState(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	states, err := f.loadStateLocked()
	if err != nil {
		return err
	}
	if _, ok := states[key]; !ok {
		return nil
	}
	delete(states, key)

	if err := writeJSONFile(f.statePath, states); err != nil {
		return fmt.Errorf("failed to save state to %q: %w", f.statePath, err)
	}
	return nil
}

// Cleanup removes bucket state whose last refill is older than the cutoff.
func (f *FileBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	states, err := f.loadStateLocked()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for key, state := range states {
		if state.LastRefill.Before(olderThan) {
			delete(states, key)
			deleted++
		}
	}
	if deleted == 0 {
		return 0, nil
	}

	if err := writeJSONFile(f.statePath, states); err != nil {
		return 0, fmt.Errorf("failed to save state to %q: %w", f.statePath, err)
	}
	return deleted, nil
}

// Close releases resources held by the backend. File handles are not kept
// open between operations, so this is a no-op.
func (f *FileBackend) Close() error { return nil }

// readJSONFile decodes the file at path into v.
// A missing file is not an error; v is left untouched.
func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// writeJSONFile atomically writes v as indented JSON to path.
func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

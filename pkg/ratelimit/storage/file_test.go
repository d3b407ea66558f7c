package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	dir := t.TempDir()
	return NewFileBackend(
		filepath.Join(dir, "limits.json"),
		filepath.Join(dir, "state.json"),
	)
}

func TestFileBackend_LimitsRoundTrip(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	limits := map[string]Limit{
		"search": {Capacity: 10, RefillRate: 1},
		"deploy": {Capacity: 3, RefillRate: 0.5},
	}
	if err := backend.SaveLimits(ctx, limits); err != nil {
		t.Fatalf("SaveLimits failed: %v", err)
	}

	loaded, err := backend.LoadLimits(ctx)
	if err != nil {
		t.Fatalf("LoadLimits failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 limits, got %d", len(loaded))
	}
	if loaded["search"] != limits["search"] || loaded["deploy"] != limits["deploy"] {
		t.Errorf("loaded limits differ: %+v", loaded)
	}
}

func TestFileBackend_StateRoundTrip(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	refillAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := BucketState{Capacity: 10, RefillRate: 1, Tokens: 4.5, LastRefill: refillAt}

	if err := backend.SaveState(ctx, "search::alice", state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	loaded, err := backend.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	got, ok := loaded["search::alice"]
	if !ok {
		t.Fatal("saved key missing after load")
	}
	if got.Tokens != 4.5 || got.Capacity != 10 || !got.LastRefill.Equal(refillAt) {
		t.Errorf("loaded state differs: %+v", got)
	}
}

func TestFileBackend_MissingFilesAreEmpty(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	limits, err := backend.LoadLimits(ctx)
	if err != nil {
		t.Fatalf("LoadLimits on missing file failed: %v", err)
	}
	if len(limits) != 0 {
		t.Errorf("expected empty limits, got %+v", limits)
	}

	states, err := backend.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState on missing file failed: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected empty state, got %+v", states)
	}
}

func TestFileBackend_RejectsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	limitsPath := filepath.Join(dir, "limits.json")
	statePath := filepath.Join(dir, "state.json")
	backend := NewFileBackend(limitsPath, statePath)
	ctx := context.Background()

	// Capacity must be positive.
	if err := os.WriteFile(limitsPath, []byte(`{"search": {"capacity": 0, "refill_rate": 1}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := backend.LoadLimits(ctx); err == nil {
		t.Error("expected error for zero-capacity limit record")
	}

	// Tokens above capacity never reach bucket logic.
	if err := os.WriteFile(statePath, []byte(`{"search": {"capacity": 5, "refill_rate": 1, "tokens": 99, "last_refill": "2026-03-01T12:00:00Z"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := backend.LoadState(ctx); err == nil {
		t.Error("expected error for out-of-range token record")
	}

	// Invalid JSON surfaces, never silently defaults.
	if err := os.WriteFile(limitsPath, []byte(`{not json`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := backend.LoadLimits(ctx); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFileBackend_SaveAllAndCleanup(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	states := map[string]BucketState{
		"stale": {Capacity: 5, RefillRate: 1, Tokens: 5, LastRefill: old},
		"live":  {Capacity: 5, RefillRate: 1, Tokens: 2, LastRefill: recent},
	}
	if err := backend.SaveAll(ctx, states); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	deleted, err := backend.Cleanup(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 entry cleaned up, got %d", deleted)
	}

	loaded, err := backend.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if _, ok := loaded["stale"]; ok {
		t.Error("stale entry survived cleanup")
	}
	if _, ok := loaded["live"]; !ok {
		t.Error("live entry removed by cleanup")
	}
}

func TestFileBackend_DeleteState(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	state := BucketState{Capacity: 5, RefillRate: 1, Tokens: 5, LastRefill: time.Now()}
	if err := backend.SaveState(ctx, "gone", state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if err := backend.DeleteState(ctx, "gone"); err != nil {
		t.Fatalf("DeleteState failed: %v", err)
	}
	// Deleting a missing key is a no-op.
	if err := backend.DeleteState(ctx, "gone"); err != nil {
		t.Fatalf("second DeleteState failed: %v", err)
	}

	loaded, err := backend.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty state, got %+v", loaded)
	}
}

func TestFileBackend_EnvFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLimitsFile, filepath.Join(dir, "custom-limits.json"))
	t.Setenv(EnvStateFile, filepath.Join(dir, "custom-state.json"))

	backend := NewFileBackend("", "")
	if backend.LimitsPath() != filepath.Join(dir, "custom-limits.json") {
		t.Errorf("limits path ignored env: %q", backend.LimitsPath())
	}
	if backend.StatePath() != filepath.Join(dir, "custom-state.json") {
		t.Errorf("state path ignored env: %q", backend.StatePath())
	}
}

func TestFileBackend_WritesAreWellFormedJSON(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	if err := backend.SaveLimits(ctx, map[string]Limit{"a": {Capacity: 1, RefillRate: 1}}); err != nil {
		t.Fatalf("SaveLimits failed: %v", err)
	}

	data, err := os.ReadFile(backend.LimitsPath())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var parsed map[string]Limit
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/ratelimit"
	"tollgate-hq/tollgate/pkg/ratelimit/storage"
)

func newTestServer(t *testing.T) (*Server, *ratelimit.Registry) {
	t.Helper()

	backend := storage.NewMemoryBackend()
	registry, err := ratelimit.NewRegistry(context.Background(), ratelimit.RegistryConfig{
		Storage: backend,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })

	srv, err := New(Config{
		Registry: registry,
		Backend:  backend,
		Server: config.ServerConfig{
			ListenAddress: "127.0.0.1:0",
			ReadTimeout:   5 * time.Second,
			WriteTimeout:  5 * time.Second,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, registry
}

func postCheck(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCheckAllowed(t *testing.T) {
	srv, registry := newTestServer(t)
	if err := registry.SetLimit(context.Background(), "search", 2, 1); err != nil {
		t.Fatalf("failed to set limit: %v", err)
	}

	rec := postCheck(t, srv.Handler(), `{"tool":"search","user":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Allowed {
		t.Error("expected allowed decision")
	}
	if resp.Key != "search::alice" {
		t.Errorf("expected key search::alice, got %q", resp.Key)
	}
	if resp.Remaining != 1 {
		t.Errorf("expected 1 token remaining, got %v", resp.Remaining)
	}
}

func TestCheckDenied(t *testing.T) {
	srv, registry := newTestServer(t)
	if err := registry.SetLimit(context.Background(), "search", 1, 0.5); err != nil {
		t.Fatalf("failed to set limit: %v", err)
	}

	handler := srv.Handler()
	if rec := postCheck(t, handler, `{"tool":"search"}`); rec.Code != http.StatusOK {
		t.Fatalf("first check should pass, got %d", rec.Code)
	}

	rec := postCheck(t, handler, `{"tool":"search"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}

	var resp CheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Allowed {
		t.Error("expected denied decision")
	}
	if resp.RetryAfter <= 0 {
		t.Errorf("expected positive retry_after_seconds, got %v", resp.RetryAfter)
	}
}

func TestCheckUnknownTool(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postCheck(t, srv.Handler(), `{"tool":"unconfigured"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestCheckInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postCheck(t, srv.Handler(), `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestCheckInvalidName(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postCheck(t, srv.Handler(), `{"tool":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty tool, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, registry := newTestServer(t)
	ctx := context.Background()
	if err := registry.SetLimit(ctx, "search", 5, 1); err != nil {
		t.Fatalf("failed to set limit: %v", err)
	}
	if _, err := registry.Check(ctx, "search", "alice"); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/status?tool=search", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var snapshots []ratelimit.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshots); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if snapshots[0].Key != "search::alice" {
		t.Errorf("expected key search::alice, got %q", snapshots[0].Key)
	}
	if snapshots[0].Tokens < 4 || snapshots[0].Tokens >= 5 {
		t.Errorf("expected roughly 4 tokens, got %v", snapshots[0].Tokens)
	}
}

func TestStatusUnknownTool(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/status?tool=missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("ok")) {
		t.Errorf("expected ok body, got %s", rec.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestInvalidCleanupSchedule(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.cfg.StateRetention = time.Hour
	srv.cfg.CleanupSchedule = "not a schedule"

	if err := srv.scheduleMaintenance(context.Background()); err == nil {
		t.Fatal("expected error for invalid cleanup schedule")
	}
}

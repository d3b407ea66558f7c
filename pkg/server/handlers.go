package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tollgate-hq/tollgate/pkg/audit"
	"tollgate-hq/tollgate/pkg/ratelimit"
)

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	Tool string `json:"tool"`
	User string `json:"user,omitempty"`
}

// CheckResponse is the body returned for a check decision.
type CheckResponse struct {
	Allowed    bool    `json:"allowed"`
	Key        string  `json:"key"`
	Remaining  float64 `json:"remaining"`
	RetryAfter float64 `json:"retry_after_seconds,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP routes for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/check", s.handleCheck)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.withRequestLog(mux)
}

// withRequestLog assigns a request ID and logs each request on completion.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	decision, err := s.registry.Check(r.Context(), req.Tool, req.User)
	if err != nil {
		s.writeCheckError(w, err)
		return
	}

	s.recordAudit(r, req, decision)

	resp := CheckResponse{
		Allowed:   decision.Allowed,
		Key:       decision.Key,
		Remaining: decision.Remaining,
	}
	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusTooManyRequests
		resp.RetryAfter = decision.RetryAfter.Seconds()
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeCheckError(w http.ResponseWriter, err error) {
	var configErr *ratelimit.ConfigError
	var storageErr *ratelimit.StorageError
	switch {
	case errors.Is(err, ratelimit.ErrUnknownTool):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &configErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &storageErr):
		s.logger.Error("check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage failure"})
	default:
		s.logger.Error("check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// recordAudit journals the decision. Failure to record never affects the
// response.
func (s *Server) recordAudit(r *http.Request, req CheckRequest, decision *ratelimit.Decision) {
	if s.auditor == nil {
		return
	}
	record := &audit.Record{
		Tool:      req.Tool,
		User:      req.User,
		Key:       decision.Key,
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
	}
	if err := s.auditor.Append(r.Context(), record); err != nil {
		s.logger.Warn("failed to record decision", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tool := r.URL.Query().Get("tool")
	user := r.URL.Query().Get("user")

	snapshots, err := s.registry.Status(r.Context(), tool, user)
	if err != nil {
		if errors.Is(err, ratelimit.ErrUnknownTool) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("status failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Status is already committed, so an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

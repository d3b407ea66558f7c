package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"tollgate-hq/tollgate/pkg/audit"
	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/ratelimit"
	"tollgate-hq/tollgate/pkg/ratelimit/storage"
)

// Config assembles the dependencies for a Server.
type Config struct {
	// Registry handles all limit decisions. Required.
	Registry *ratelimit.Registry

	// Backend is the registry's storage backend, used for scheduled
	// state cleanup. Required.
	Backend storage.Backend

	// Auditor records decisions when non-nil.
	Auditor *audit.Store

	// Server holds listen address, timeouts, and maintenance schedules.
	Server config.ServerConfig

	// Audit holds journal retention settings.
	Audit config.AuditConfig

	// LimitsFile is the path watched for hot reload. Empty disables
	// watching regardless of Server.WatchLimits.
	LimitsFile string

	// Logger receives structured log output. Default: slog.Default.
	Logger *slog.Logger
}

// Server serves limit decisions over HTTP and runs scheduled maintenance.
type Server struct {
	registry *ratelimit.Registry
	backend  storage.Backend
	auditor  *audit.Store
	cfg      config.ServerConfig
	auditCfg config.AuditConfig

	limitsFile string
	logger     *slog.Logger
	httpServer *http.Server
	cron       *cron.Cron
}

// New creates a Server from the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		registry:   cfg.Registry,
		backend:    cfg.Backend,
		auditor:    cfg.Auditor,
		cfg:        cfg.Server,
		auditCfg:   cfg.Audit,
		limitsFile: cfg.LimitsFile,
		logger:     cfg.Logger.With("component", "server"),
		cron:       cron.New(),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// Run starts the HTTP listener, maintenance jobs, and the limits watcher,
// then blocks until ctx is canceled and the server has shut down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.scheduleMaintenance(ctx); err != nil {
		return err
	}
	s.cron.Start()
	defer s.cron.Stop()

	if s.cfg.WatchLimits && s.limitsFile != "" {
		stop, err := s.watchLimits(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// scheduleMaintenance registers the state cleanup and audit prune jobs.
func (s *Server) scheduleMaintenance(ctx context.Context) error {
	if s.cfg.StateRetention > 0 && s.cfg.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(s.cfg.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", s.cfg.CleanupSchedule, err)
		}
		_, err := s.cron.AddFunc(s.cfg.CleanupSchedule, func() {
			cutoff := time.Now().Add(-s.cfg.StateRetention)
			deleted, err := s.backend.Cleanup(ctx, cutoff)
			if err != nil {
				s.logger.Error("state cleanup failed", "error", err)
				return
			}
			if deleted > 0 {
				s.logger.Info("stale bucket state removed", "deleted", deleted)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule state cleanup: %w", err)
		}
	}

	if s.auditor != nil && s.auditCfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(s.auditCfg.PruneSchedule); err != nil {
			return fmt.Errorf("invalid prune schedule %q: %w", s.auditCfg.PruneSchedule, err)
		}
		_, err := s.cron.AddFunc(s.auditCfg.PruneSchedule, func() {
			cutoff := time.Now().AddDate(0, 0, -s.auditCfg.RetentionDays)
			if _, err := s.auditor.Prune(ctx, cutoff); err != nil {
				s.logger.Error("audit prune failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule audit prune: %w", err)
		}
	}

	return nil
}

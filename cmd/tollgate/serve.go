package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/ratelimit"
	"tollgate-hq/tollgate/pkg/ratelimit/storage"
	"tollgate-hq/tollgate/pkg/server"
)

var serveFlags struct {
	listenAddress string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve limit decisions over HTTP",
	Long: `Run tollgate as a long-lived HTTP service.

Endpoints:
  POST /v1/check    spend a token (200 allowed, 429 denied)
  GET  /v1/status   bucket snapshots
  GET  /metrics     Prometheus metrics
  GET  /healthz     liveness probe

With the file backend, edits to the limits file are picked up without a
restart when server.watch_limits is enabled. Stale bucket state and old
journal entries are pruned on the configured schedules.

Examples:
  # Start with defaults
  tollgate serve

  # Override the listen address
  tollgate serve --listen 0.0.0.0:8372

  # Validate config without starting
  tollgate serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}

	if serveFlags.dryRun {
		fmt.Println("Configuration valid")
		return nil
	}

	ctx := cli.SetupSignalHandler()

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}

	metrics := ratelimit.NewMetrics()
	registry, err := ratelimit.NewRegistry(ctx, ratelimit.RegistryConfig{
		Storage: backend,
		Logger:  slog.Default(),
		Metrics: metrics,
	})
	if err != nil {
		backend.Close()
		return err
	}
	defer registry.Close()

	auditor, err := newAuditStore(cfg)
	if err != nil {
		return err
	}
	if auditor != nil {
		defer auditor.Close()
	}

	srv, err := server.New(server.Config{
		Registry:   registry,
		Backend:    backend,
		Auditor:    auditor,
		Server:     cfg.Server,
		Audit:      cfg.Audit,
		LimitsFile: limitsFilePath(backend),
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}

	slog.Info("starting tollgate server",
		"version", Version,
		"address", cfg.Server.ListenAddress,
		"backend", cfg.Storage.Backend)

	return srv.Run(ctx)
}

// limitsFilePath reports the file to watch for hot reload. Only the file
// backend has one.
func limitsFilePath(backend storage.Backend) string {
	if fb, ok := backend.(*storage.FileBackend); ok {
		return fb.LimitsPath()
	}
	return ""
}

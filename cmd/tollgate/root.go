package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/audit"
	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/ratelimit"
	"tollgate-hq/tollgate/pkg/ratelimit/storage"
	"tollgate-hq/tollgate/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tollgate",
	Short: "Tollgate - persistent token bucket rate limiter",
	Long: `Tollgate is a rate limiter for tool invocations with durable state.

Each tool gets a token bucket that refills continuously at a configured
rate. Limits can optionally be tracked per user, so "search" and
"search for alice" draw from separate budgets under the same limit.

Bucket state persists between invocations, making tollgate usable as a
guard in scripts and hooks:

  tollgate check deploy "$USER" || exit 1

Exit codes: 0 allowed, 1 denied, 2 configuration error, 3 storage error.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code mapped from its
// error. A denied check exits 1 without an error message.
func Execute() {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, cli.ErrDenied) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "output format (text, json)")
}

// loadAppConfig loads the config file and installs the configured logger
// as the process default.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:  level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return cfg, nil
}

// openBackend creates the limiter storage backend selected by the config.
func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendFile:
		return storage.NewFileBackend(cfg.Storage.LimitsFile, cfg.Storage.StateFile), nil
	case config.BackendSQLite:
		backend, err := storage.NewSQLiteBackend(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, ratelimit.NewStorageError("open sqlite backend", err)
		}
		return backend, nil
	case config.BackendMemory:
		return storage.NewMemoryBackend(), nil
	default:
		return nil, ratelimit.NewConfigError("storage.backend",
			fmt.Sprintf("unknown backend %q", cfg.Storage.Backend))
	}
}

// newRegistry opens the configured backend and loads a registry from it.
// The caller owns the registry and must Close it.
func newRegistry(ctx context.Context, cfg *config.Config) (*ratelimit.Registry, storage.Backend, error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	registry, err := ratelimit.NewRegistry(ctx, ratelimit.RegistryConfig{
		Storage: backend,
		Logger:  slog.Default(),
	})
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return registry, backend, nil
}

// newAuditStore opens the decision journal, or returns nil when auditing
// is disabled.
func newAuditStore(cfg *config.Config) (*audit.Store, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	store, err := audit.NewStore(audit.StoreConfig{Path: cfg.Audit.Path})
	if err != nil {
		return nil, ratelimit.NewStorageError("open audit store", err)
	}
	return store, nil
}

func parseFormat() (cli.OutputFormat, error) {
	switch outputFormat {
	case "text", "":
		return cli.FormatText, nil
	case "json":
		return cli.FormatJSON, nil
	default:
		return "", ratelimit.NewConfigError("format",
			fmt.Sprintf("unknown output format %q", outputFormat))
	}
}

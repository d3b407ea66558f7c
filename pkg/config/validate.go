package config

import "fmt"

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of %q, %q, %q; got %q",
			BackendFile, BackendSQLite, BackendMemory, cfg.Storage.Backend)
	}

	if cfg.Storage.Backend == BackendSQLite && cfg.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
	}

	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}
	if cfg.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must be non-negative, got %d", cfg.Audit.RetentionDays)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text; got %q", cfg.Logging.Format)
	}

	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}
	if cfg.Server.StateRetention < 0 {
		return fmt.Errorf("server.state_retention must be non-negative, got %v", cfg.Server.StateRetention)
	}

	return nil
}

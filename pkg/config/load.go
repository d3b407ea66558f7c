package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies defaults, applies
// TOLLGATE_* environment overrides, and validates the result.
//
// When path equals DefaultPath and the file does not exist, built-in
// defaults are used; the CLI works without a configuration file. An
// explicitly given path that cannot be read is an error.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	case os.IsNotExist(err) && path == DefaultPath:
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
// Variables use the format TOLLGATE_SECTION_FIELD and always take
// precedence over file values.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("TOLLGATE_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("TOLLGATE_LIMITS_FILE"); val != "" {
		cfg.Storage.LimitsFile = val
	}
	if val := os.Getenv("TOLLGATE_STATE_FILE"); val != "" {
		cfg.Storage.StateFile = val
	}
	if val := os.Getenv("TOLLGATE_STORAGE_SQLITE_PATH"); val != "" {
		cfg.Storage.SQLitePath = val
	}

	if val := os.Getenv("TOLLGATE_AUDIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if val := os.Getenv("TOLLGATE_AUDIT_PATH"); val != "" {
		cfg.Audit.Path = val
	}

	if val := os.Getenv("TOLLGATE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("TOLLGATE_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("TOLLGATE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("TOLLGATE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("TOLLGATE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
}

package config

import "time"

// DefaultPath is the configuration file read when --config is not given.
const DefaultPath = "tollgate.yaml"

// Config is the root application configuration.
type Config struct {
	// Storage selects and configures the limiter persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// Audit configures the check decision journal.
	Audit AuditConfig `yaml:"audit"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Server configures serve mode.
	Server ServerConfig `yaml:"server"`
}

// StorageConfig configures limiter persistence.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "memory".
	Backend string `yaml:"backend"`

	// LimitsFile is the JSON limits file path (file backend).
	// Empty falls back to TOLLGATE_LIMITS_FILE and then "limits.json".
	LimitsFile string `yaml:"limits_file"`

	// StateFile is the JSON state file path (file backend).
	// Empty falls back to TOLLGATE_STATE_FILE and then "state.json".
	StateFile string `yaml:"state_file"`

	// SQLitePath is the database file path (sqlite backend).
	SQLitePath string `yaml:"sqlite_path"`
}

// AuditConfig configures the decision journal.
type AuditConfig struct {
	// Enabled turns decision recording on.
	Enabled bool `yaml:"enabled"`

	// Path is the journal database file path.
	Path string `yaml:"path"`

	// RetentionDays is how long records are kept before pruning.
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for scheduled pruning in serve
	// mode, e.g. "0 3 * * *" for daily at 3 AM. Empty disables pruning.
	PruneSchedule string `yaml:"prune_schedule"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	// ListenAddress is the HTTP listen address.
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// WatchLimits hot-reloads the limits file when it changes on disk.
	// Only meaningful with the file backend.
	WatchLimits bool `yaml:"watch_limits"`

	// StateRetention is how long unused bucket state is kept before the
	// scheduled cleanup removes it. Zero disables cleanup.
	StateRetention time.Duration `yaml:"state_retention"`

	// CleanupSchedule is a cron expression for scheduled state cleanup.
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

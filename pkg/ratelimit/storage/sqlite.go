package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence.
// It provides durable storage suitable for single-instance deployments
// where limiter state must survive restarts.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent
// performance and periodic checkpointing to balance write performance
// with durability.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once

	saveLimitStmt  *sql.Stmt
	loadLimitsStmt *sql.Stmt
	saveStateStmt  *sql.Stmt
	loadStatesStmt *sql.Stmt
	deleteStmt     *sql.Stmt
	cleanupStmt    *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath:             dbPath,
		CheckpointInterval: 5 * time.Minute,
		BusyTimeout:        5 * time.Second,
	})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_limits (
		tool TEXT PRIMARY KEY,
		capacity REAL NOT NULL,
		refill_rate REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bucket_states (
		key TEXT PRIMARY KEY,
		capacity REAL NOT NULL,
		refill_rate REAL NOT NULL,
		tokens REAL NOT NULL,
		last_refill INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_last_refill ON bucket_states(last_refill);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveLimitStmt, err = s.db.Prepare(`
		INSERT INTO tool_limits (tool, capacity, refill_rate)
		VALUES (?, ?, ?)
		ON CONFLICT (tool) DO UPDATE SET
			capacity = excluded.capacity,
			refill_rate = excluded.refill_rate
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save limit statement: %w", err)
	}

	s.loadLimitsStmt, err = s.db.Prepare(`
		SELECT tool, capacity, refill_rate FROM tool_limits
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load limits statement: %w", err)
	}

	s.saveStateStmt, err = s.db.Prepare(`
		INSERT INTO bucket_states (key, capacity, refill_rate, tokens, last_refill)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			capacity = excluded.capacity,
			refill_rate = excluded.refill_rate,
			tokens = excluded.tokens,
			last_refill = excluded.last_refill
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save state statement: %w", err)
	}

	s.loadStatesStmt, err = s.db.Prepare(`
		SELECT key, capacity, refill_rate, tokens, last_refill FROM bucket_states
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load states statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`
		DELETE FROM bucket_states WHERE key = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`
		DELETE FROM bucket_states WHERE last_refill < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// LoadLimits returns the limit configuration for all tools.
func (s *SQLiteBackend) LoadLimits(ctx context.Context) (map[string]Limit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.loadLimitsStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load limits: %w", err)
	}
	defer rows.Close()

	limits := make(map[string]Limit)
	for rows.Next() {
		var (
			tool  string
			limit Limit
		)
		if err := rows.Scan(&tool, &limit.Capacity, &limit.RefillRate); err != nil {
			return nil, fmt.Errorf("failed to scan limit row: %w", err)
		}
		if err := limit.Validate(); err != nil {
			return nil, fmt.Errorf("stored limit for tool %q: %w", tool, err)
		}
		limits[tool] = limit
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating limit rows: %w", err)
	}

	return limits, nil
}

// SaveLimits persists the full limit configuration.
func (s *SQLiteBackend) SaveLimits(ctx context.Context, limits map[string]Limit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tool_limits"); err != nil {
		return fmt.Errorf("failed to clear limits: %w", err)
	}
	for tool, limit := range limits {
		if _, err := tx.StmtContext(ctx, s.saveLimitStmt).ExecContext(ctx,
			tool, limit.Capacity, limit.RefillRate); err != nil {
			return fmt.Errorf("failed to save limit for %q: %w", tool, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit limits: %w", err)
	}
	return nil
}

// LoadState returns the bucket state for all limiter keys.
func (s *SQLiteBackend) LoadState(ctx context.Context) (map[string]BucketState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.loadStatesStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	defer rows.Close()

	states := make(map[string]BucketState)
	for rows.Next() {
		var (
			key        string
			state      BucketState
			lastRefill int64
		)
		if err := rows.Scan(&key, &state.Capacity, &state.RefillRate, &state.Tokens, &lastRefill); err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		state.LastRefill = time.Unix(0, lastRefill)
		if err := state.Validate(); err != nil {
			return nil, fmt.Errorf("stored state for key %q: %w", key, err)
		}
		states[key] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state rows: %w", err)
	}

	return states, nil
}

// SaveState persists the bucket state for a single key.
func (s *SQLiteBackend) SaveState(ctx context.Context, key string, state BucketState) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid state for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.saveStateStmt.ExecContext(ctx,
		key, state.Capacity, state.RefillRate, state.Tokens, state.LastRefill.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save state for %q: %w", key, err)
	}
	return nil
}

// SaveAll replaces the entire persisted bucket state.
func (s *SQLiteBackend) SaveAll(ctx context.Context, states map[string]BucketState) error {
	for key, state := range states {
		if err := state.Validate(); err != nil {
			return fmt.Errorf("refusing to save invalid state for %q: %w", key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM bucket_states"); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	for key, state := range states {
		if _, err := tx.StmtContext(ctx, s.saveStateStmt).ExecContext(ctx,
			key, state.Capacity, state.RefillRate, state.Tokens, state.LastRefill.UnixNano()); err != nil {
			return fmt.Errorf("failed to save state for %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// DeleteState removes the bucket state for a key.
func (s *SQLiteBackend) DeleteState(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete state for %q: %w", key, err)
	}
	return nil
}

// Cleanup removes bucket state whose last refill is older than the cutoff.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{
			s.saveLimitStmt, s.loadLimitsStmt, s.saveStateStmt,
			s.loadStatesStmt, s.deleteStmt, s.cleanupStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			// Run final checkpoint
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

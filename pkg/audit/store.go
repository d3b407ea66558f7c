package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one persisted check decision.
type Record struct {
	// ID is a UUID assigned when the record is appended.
	ID string `json:"id"`

	// Tool and User identify what the check was made against.
	Tool string `json:"tool"`
	User string `json:"user,omitempty"`

	// Key is the limiter key the decision was made under.
	Key string `json:"key"`

	// Allowed is the check outcome.
	Allowed bool `json:"allowed"`

	// Remaining is the token count left after the check.
	Remaining float64 `json:"remaining"`

	// CreatedAt is when the decision was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects records for Query. Zero-valued fields match everything.
type Filter struct {
	Tool       string
	User       string
	DeniedOnly bool
	Since      time.Time
	Limit      int
}

// StoreConfig configures the audit store.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// Store is a SQLite-backed journal of check decisions.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	insertStmt *sql.Stmt
	pruneStmt  *sql.Stmt

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewStore opens (creating if needed) the audit journal at cfg.Path.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "audit.store")

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}

	s := &Store{db: db, logger: logger}

	if err := s.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("audit store opened", "path", cfg.Path)
	return s, nil
}

func (s *Store) initialize(busyTimeout time.Duration) error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		tool TEXT NOT NULL,
		user TEXT NOT NULL DEFAULT '',
		key TEXT NOT NULL,
		allowed INTEGER NOT NULL,
		remaining REAL NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
	CREATE INDEX IF NOT EXISTS idx_decisions_tool ON decisions(tool);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}

	var err error
	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO decisions (id, tool, user, key, allowed, remaining, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	s.pruneStmt, err = s.db.Prepare(`DELETE FROM decisions WHERE created_at < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune statement: %w", err)
	}

	return nil
}

// Append writes a decision to the journal. The record's ID is assigned here;
// CreatedAt is filled with the current time when zero.
func (s *Store) Append(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.Tool == "" {
		return fmt.Errorf("record tool cannot be empty")
	}

	record.ID = uuid.NewString()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	allowed := 0
	if record.Allowed {
		allowed = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.insertStmt.ExecContext(ctx,
		record.ID, record.Tool, record.User, record.Key,
		allowed, record.Remaining, record.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}
	return nil
}

// Query returns journal records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Tool != "" {
		conds = append(conds, "tool = ?")
		args = append(args, filter.Tool)
	}
	if filter.User != "" {
		conds = append(conds, "user = ?")
		args = append(args, filter.User)
	}
	if filter.DeniedOnly {
		conds = append(conds, "allowed = 0")
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := "SELECT id, tool, user, key, allowed, remaining, created_at FROM decisions"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record    Record
			allowed   int
			createdAt int64
		)
		if err := rows.Scan(&record.ID, &record.Tool, &record.User, &record.Key,
			&allowed, &record.Remaining, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		record.Allowed = allowed != 0
		record.CreatedAt = time.Unix(0, createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}

	return records, nil
}

// Prune removes records older than the cutoff and returns how many were
// deleted.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.pruneStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune decisions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("audit journal pruned", "deleted", deleted)
	}
	return int(deleted), nil
}

// Close releases the underlying database. Safe to call multiple times.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.insertStmt != nil {
			s.insertStmt.Close()
		}
		if s.pruneStmt != nil {
			s.pruneStmt.Close()
		}
		if s.db != nil {
			closeErr = s.db.Close()
		}
	})
	return closeErr
}

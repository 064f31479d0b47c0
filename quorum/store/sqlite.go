package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of RunStore[R].
//
// It stores final reports in a single-file database. Designed for:
//   - Development and local use with zero setup
//   - Single-process deployments
//   - Keeping run history across CLI invocations
//
// SQLiteStore uses WAL mode for concurrent reads.
//
// Type parameter R is the report type to persist (must be
// JSON-serializable).
type SQLiteStore[R any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed run store.
//
// The path parameter specifies the database file location:
//   - "./runs.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// The store creates the database file and schema if missing, enables WAL
// mode, and sets a lock wait timeout.
//
// Example:
//
//	st, err := NewSQLiteStore[*quorum.FinalReport]("./runs.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[R any](path string) (*SQLiteStore[R], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	st := &SQLiteStore[R]{db: db, path: path}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore[R]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id TEXT NOT NULL PRIMARY KEY,
			report TEXT NOT NULL,
			saved_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create analysis_runs table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_runs_saved_at ON analysis_runs(saved_at)"); err != nil {
		return fmt.Errorf("failed to create idx_runs_saved_at: %w", err)
	}
	return nil
}

// SaveRun persists the report for a run. Saving the same run ID twice
// replaces the earlier report.
func (s *SQLiteStore[R]) SaveRun(ctx context.Context, runID string, report R) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO analysis_runs (run_id, report, saved_at) VALUES (?, ?, ?)",
		runID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", runID, err)
	}
	return nil
}

// LoadRun retrieves a persisted report. Returns ErrNotFound if the run ID
// does not exist.
func (s *SQLiteStore[R]) LoadRun(ctx context.Context, runID string) (R, error) {
	var zero R
	if err := s.ensureOpen(); err != nil {
		return zero, err
	}

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT report FROM analysis_runs WHERE run_id = ?", runID).Scan(&data)
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var report R
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return zero, fmt.Errorf("failed to unmarshal report for run %s: %w", runID, err)
	}
	return report, nil
}

// ListRuns returns summaries of all persisted runs, newest first.
func (s *SQLiteStore[R]) ListRuns(ctx context.Context) ([]RunSummary, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, saved_at FROM analysis_runs ORDER BY saved_at DESC, run_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return summaries, nil
}

// Close releases the database connection. The store cannot be used after
// Close.
func (s *SQLiteStore[R]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore[R]) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

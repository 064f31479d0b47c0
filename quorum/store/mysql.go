package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of RunStore[R].
//
// Designed for:
//   - Production deployments requiring durable run history
//   - Multiple coordinator hosts sharing one store
//   - Audit trails across long-lived projects
//
// MySQLStore uses connection pooling; reports are stored as JSON.
//
// Type parameter R is the report type to persist (must be
// JSON-serializable).
type MySQLStore[R any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed run store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Use parseTime=true so saved_at scans into time.Time:
//
//	user:password@tcp(localhost:3306)/quorum?parseTime=true
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//
// The store creates the schema if missing and verifies connectivity before
// returning.
func NewMySQLStore[R any](dsn string) (*MySQLStore[R], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore[R]{db: db}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (s *MySQLStore[R]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id VARCHAR(255) NOT NULL PRIMARY KEY,
			report JSON NOT NULL,
			saved_at TIMESTAMP NOT NULL,
			INDEX idx_runs_saved_at (saved_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create analysis_runs table: %w", err)
	}
	return nil
}

// SaveRun persists the report for a run. Saving the same run ID twice
// replaces the earlier report.
func (s *MySQLStore[R]) SaveRun(ctx context.Context, runID string, report R) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, report, saved_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE report = VALUES(report), saved_at = VALUES(saved_at)`,
		runID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", runID, err)
	}
	return nil
}

// LoadRun retrieves a persisted report. Returns ErrNotFound if the run ID
// does not exist.
func (s *MySQLStore[R]) LoadRun(ctx context.Context, runID string) (R, error) {
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
func (s *MySQLStore[R]) ListRuns(ctx context.Context) ([]RunSummary, error) {
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

// Close releases the connection pool. The store cannot be used after Close.
func (s *MySQLStore[R]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *MySQLStore[R]) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

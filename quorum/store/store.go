// Package store provides persistence backends for finished analysis runs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("not found")

// RunStore persists final reports keyed by run ID.
//
// Implementations:
//   - MemStore: in-memory, for testing and single-shot CLI runs
//   - SQLiteStore: single-file database, zero setup
//   - MySQLStore: shared relational database for multi-host setups
//
// Type parameter R is the report type to persist (must be
// JSON-serializable).
type RunStore[R any] interface {
	// SaveRun persists the report for a run. Saving the same run ID twice
	// replaces the earlier report.
	SaveRun(ctx context.Context, runID string, report R) error

	// LoadRun retrieves a persisted report.
	// Returns ErrNotFound if the run ID does not exist.
	LoadRun(ctx context.Context, runID string) (R, error)

	// ListRuns returns summaries of all persisted runs, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)
}

// RunSummary identifies one persisted run.
type RunSummary struct {
	RunID   string    `json:"run_id"`
	SavedAt time.Time `json:"saved_at"`
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of RunStore[R].
//
// Designed for:
//   - Testing and development
//   - Single-shot CLI runs where persistence isn't required
//
// MemStore is thread-safe and supports concurrent access. Data is lost when
// the process terminates.
//
// Type parameter R is the report type to persist.
type MemStore[R any] struct {
	mu   sync.RWMutex
	runs map[string]memRun[R]
}

type memRun[R any] struct {
	report  R
	savedAt time.Time
}

// NewMemStore creates a new in-memory store.
func NewMemStore[R any]() *MemStore[R] {
	return &MemStore[R]{
		runs: make(map[string]memRun[R]),
	}
}

// SaveRun persists the report for a run, replacing any earlier report under
// the same run ID.
func (m *MemStore[R]) SaveRun(_ context.Context, runID string, report R) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[runID] = memRun[R]{report: report, savedAt: time.Now().UTC()}
	return nil
}

// LoadRun retrieves a persisted report. Returns ErrNotFound if the run ID
// does not exist.
func (m *MemStore[R]) LoadRun(_ context.Context, runID string) (R, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		var zero R
		return zero, ErrNotFound
	}
	return run.report, nil
}

// ListRuns returns summaries of all persisted runs, newest first.
func (m *MemStore[R]) ListRuns(_ context.Context) ([]RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]RunSummary, 0, len(m.runs))
	for id, run := range m.runs {
		summaries = append(summaries, RunSummary{RunID: id, SavedAt: run.savedAt})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].SavedAt.Equal(summaries[j].SavedAt) {
			return summaries[i].SavedAt.After(summaries[j].SavedAt)
		}
		return summaries[i].RunID < summaries[j].RunID
	})
	return summaries, nil
}

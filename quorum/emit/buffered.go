package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// It captures all events and provides query capabilities for post-run
// analysis. Events are organized by runID for efficient retrieval.
//
// Warning: all events are held in memory. For long-lived processes running
// many corpora, clear finished runs with Clear.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	coord := quorum.NewCoordinator(invoker, checker, cfg, quorum.WithEmitter(emitter))
//	coord.Run(ctx, "run-001", corpus)
//
//	escalations := emitter.GetHistoryWithFilter("run-001", emit.HistoryFilter{Msg: "claim_escalated"})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events
}

// HistoryFilter specifies criteria for filtering captured events.
//
// All filter fields are optional; set fields combine with AND logic.
type HistoryFilter struct {
	UnitID string // Filter by work unit ID (empty = no filter)
	Role   string // Filter by role (empty = no filter)
	Msg    string // Filter by message (empty = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// GetHistory retrieves all events for a specific runID in emission order.
// Returns a copy, so callers may not observe later emissions.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter retrieves events for a runID matching all set filter
// fields, in emission order.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events[runID] {
		if filter.UnitID != "" && event.UnitID != filter.UnitID {
			continue
		}
		if filter.Role != "" && event.Role != filter.Role {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		result = append(result, event)
	}
	if result == nil {
		result = []Event{}
	}
	return result
}

// Clear removes all captured events for a runID.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.events, runID)
}

// ClearAll removes every captured event.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = make(map[string][]Event)
}

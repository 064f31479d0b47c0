// Package emit provides pluggable observability for coordinator runs.
package emit

// Event represents an observability event emitted during a coordinator run.
//
// Events cover the whole run lifecycle:
//   - run start/complete
//   - invocation dispatched, retried, finished
//   - worker output parsed or rejected as malformed
//   - mutation claims verified or escalated
//   - per-unit consensus finalized
//
// Events are emitted to an Emitter which can log them, trace them, or buffer
// them for inspection.
type Event struct {
	// RunID identifies the coordinator run that emitted this event.
	RunID string

	// UnitID identifies the work unit concerned, empty for run-level events.
	UnitID string

	// Role identifies the worker role concerned, empty when not applicable.
	Role string

	// Msg is a short machine-friendly event name ("invocation_complete",
	// "claim_escalated", "run_complete", ...).
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "status": terminal invocation status
	//   - "attempt": attempt number
	//   - "duration_ms": invocation duration in milliseconds
	//   - "findings": number of findings parsed
	//   - "coverage": unit coverage status
	Meta map[string]interface{}
}

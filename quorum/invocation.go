package quorum

import "time"

// InvocationStatus is the lifecycle state of a single (work unit, role)
// worker invocation.
type InvocationStatus int

// Invocation statuses. Succeeded, TimedOut, Failed and Malformed are
// terminal once the retry budget is spent.
const (
	StatusPending InvocationStatus = iota
	StatusRunning
	StatusSucceeded
	StatusTimedOut
	StatusFailed
	StatusMalformed
)

// String returns the lowercase status name.
func (s InvocationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusTimedOut:
		return "timed_out"
	case StatusFailed:
		return "failed"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s InvocationStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusTimedOut, StatusFailed, StatusMalformed:
		return true
	default:
		return false
	}
}

// Invocation records one worker call for a (work unit, role) pair.
//
// Invocations are created by the dispatcher and mutated only by the
// dispatcher and the result parser. Every pair ends with exactly one
// terminal status; partial completion of a unit's roster is allowed and
// observable downstream through these records.
type Invocation struct {
	// WorkUnitID is the unit this invocation analyzed.
	WorkUnitID string `json:"work_unit_id"`

	// Role is the worker perspective invoked.
	Role Role `json:"role"`

	// VoteWeight is the role's weight, denormalized here so the aggregator
	// can compute per-unit totals from invocations alone.
	VoteWeight float64 `json:"vote_weight"`

	// Status is the invocation's lifecycle state.
	Status InvocationStatus `json:"status"`

	// Attempts counts invocation attempts, including the first.
	Attempts int `json:"attempt_count"`

	// RawOutput is the worker's raw output, retained for diagnosis when
	// decoding fails.
	RawOutput string `json:"raw_output,omitempty"`

	// Err holds the final error message for failed or timed-out invocations.
	Err string `json:"error,omitempty"`

	// Duration is the wall time of the final attempt.
	Duration time.Duration `json:"duration"`

	// Report is the decoded worker output. Nil unless Status is Succeeded.
	Report *WorkerReport `json:"report,omitempty"`
}

// Surviving reports whether the invocation produced a votable report.
// Only surviving invocations contribute weight to consensus.
func (inv *Invocation) Surviving() bool {
	return inv.Status == StatusSucceeded && inv.Report != nil
}

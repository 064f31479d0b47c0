package quorum

import "errors"

// ConfigError indicates invalid run configuration: an empty corpus, broken
// vote weights, or out-of-range thresholds. Configuration errors are fatal
// and abort the run before any dispatch happens.
type ConfigError struct {
	Message string
	Code    string
}

func (e *ConfigError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// RunError represents a run-level failure from the coordinator.
//
// Work-unit-local failures (timeouts, malformed output, failed invocations)
// never surface as RunErrors; they are absorbed into coverage accounting.
// Only catastrophic conditions abort a run.
type RunError struct {
	Message string
	Code    string
}

func (e *RunError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ErrMalformedOutput indicates that no stage of the decode cascade produced a
// well-formed finding from a worker's raw output. Malformed invocations are
// excluded from voting but still counted in coverage statistics.
var ErrMalformedOutput = errors.New("worker output did not decode in any cascade stage")

// ErrNoCoverage indicates that zero work units achieved minimum coverage.
// This is the one non-configuration condition that aborts a whole run.
var ErrNoCoverage = errors.New("zero work units achieved minimum coverage")

// Retryable is implemented by errors that represent transient failures worth
// a single retry, such as rate limits or connection resets from a worker
// backend.
type Retryable interface {
	IsRetryable() bool
}

// isRetryable reports whether err (or anything it wraps) declares itself
// transient via the Retryable interface.
func isRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

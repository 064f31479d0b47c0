// Package invoke provides worker invocation backends for the coordinator.
//
// Each backend implements quorum.Invoker: it receives an opaque payload for
// one (work unit, role) pair and returns the worker's raw textual output.
// The coordinator never interprets payloads and never trusts raw output; it
// runs everything through the decode cascade.
//
// Backends:
//   - MockInvoker: pre-configured outputs for testing, no network
//   - AnthropicInvoker: Anthropic's Claude API
//   - OpenAIInvoker: OpenAI's chat completion API
package invoke

import "fmt"

// Error is a structured invocation error.
//
// Retryable distinguishes transient failures (rate limits, timeouts) from
// permanent ones (invalid credentials, quota exhausted). The dispatcher
// retries transient failures once.
type Error struct {
	// Code is a stable machine-readable identifier
	// (rate_limited, timeout, invalid_api_key, quota_exceeded, api_error).
	Code string

	// Message is a human-readable description.
	Message string

	// Retryable reports whether retrying the invocation could succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRetryable reports whether the failure is transient.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

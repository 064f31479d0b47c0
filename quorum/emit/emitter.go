package emit

// Emitter receives and processes observability events from coordinator runs.
//
// Emitters enable pluggable observability backends:
//   - Logging: stdout, files, syslog
//   - Distributed tracing: OpenTelemetry
//   - In-memory capture for tests and dashboards
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down dispatch
//   - Thread-safe: May be called concurrently from many invocations
//   - Resilient: Handle failures gracefully (never crash the run)
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit should not block dispatch and should not panic. Errors should be
	// handled internally.
	Emit(event Event)
}

package invoke

import (
	"context"
	"sync"

	"github.com/dshills/quorum-go/quorum"
)

// MockInvoker is a test implementation of quorum.Invoker that returns
// pre-configured outputs without making network calls.
//
// Outputs are keyed by "unitID/role"; the Default output serves any pair
// without a specific entry. Errors are keyed the same way and take
// precedence over outputs.
//
// MockInvoker is safe for concurrent use; the dispatcher invokes it from
// many goroutines. Configure Outputs, Errors, and Default before dispatch.
//
// Example usage:
//
//	mock := &MockInvoker{
//	    Default: `{"health_score":0.9,"findings":[]}`,
//	    Errors: map[string]error{
//	        "U1/quality": &Error{Code: "rate_limited", Message: "slow down", Retryable: true},
//	    },
//	}
type MockInvoker struct {
	// Outputs maps "unitID/role" to the raw output returned for that pair.
	Outputs map[string]string

	// Errors maps "unitID/role" to the error returned for that pair.
	Errors map[string]error

	// Default is returned for pairs with no Outputs entry.
	Default string

	mu    sync.Mutex
	calls []quorum.InvokeRequest
}

// Invoke returns the configured output or error for the request's
// (unit, role) pair. It respects context cancellation and records every call
// for later inspection with Calls.
func (m *MockInvoker) Invoke(ctx context.Context, req quorum.InvokeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	key := req.Unit.ID + "/" + string(req.Role)
	if err, ok := m.Errors[key]; ok {
		return "", err
	}
	if out, ok := m.Outputs[key]; ok {
		return out, nil
	}
	return m.Default, nil
}

// Name returns "mock".
func (m *MockInvoker) Name() string {
	return "mock"
}

// Calls returns a copy of every request received, in arrival order.
func (m *MockInvoker) Calls() []quorum.InvokeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]quorum.InvokeRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

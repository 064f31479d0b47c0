package quorum

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Collectors verifies the metric helpers drive their collectors.
func TestMetrics_Collectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	t.Run("inflight gauge tracks start and finish", func(t *testing.T) {
		m.InvocationStarted()
		m.InvocationStarted()
		if got := testutil.ToFloat64(m.inflight); got != 2 {
			t.Errorf("inflight = %f, want 2", got)
		}

		m.InvocationFinished()
		if got := testutil.ToFloat64(m.inflight); got != 1 {
			t.Errorf("inflight = %f, want 1", got)
		}
		m.InvocationFinished()
	})

	t.Run("latency histogram observes per role and status", func(t *testing.T) {
		m.InvocationLatency("quality", "succeeded", 120*time.Millisecond)
		m.InvocationLatency("design", "timed_out", 60*time.Second)

		if got := testutil.CollectAndCount(m.latency); got != 2 {
			t.Errorf("latency series = %d, want 2", got)
		}
	})

	t.Run("retry counter labels role and reason", func(t *testing.T) {
		m.InvocationRetried("quality", "timeout")
		m.InvocationRetried("quality", "timeout")
		m.InvocationRetried("design", "transient")

		if got := testutil.ToFloat64(m.retries.WithLabelValues("quality", "timeout")); got != 2 {
			t.Errorf("retries{quality,timeout} = %f, want 2", got)
		}
		if got := testutil.ToFloat64(m.retries.WithLabelValues("design", "transient")); got != 1 {
			t.Errorf("retries{design,transient} = %f, want 1", got)
		}
	})

	t.Run("malformed and escalation counters increment", func(t *testing.T) {
		m.MalformedOutput("implementation")
		m.EscalationRecorded()

		if got := testutil.ToFloat64(m.malformed.WithLabelValues("implementation")); got != 1 {
			t.Errorf("malformed{implementation} = %f, want 1", got)
		}
		if got := testutil.ToFloat64(m.escalations); got != 1 {
			t.Errorf("escalations = %f, want 1", got)
		}
	})
}

// TestMetrics_DispatchIntegration verifies the dispatcher feeds the collectors.
func TestMetrics_DispatchIntegration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	units := []WorkUnit{{ID: "U1", Label: "pkg", ResourcePatterns: []string{"a.go"}, EstimatedSize: 10}}
	invoker := &stubInvoker{fn: func(ctx context.Context, req InvokeRequest, call int) (string, error) {
		return cleanOutput, nil
	}}

	dispatcher := NewDispatcher(invoker, nil, fastConfig(), nil, m)
	invocations := dispatcher.Dispatch(context.Background(), "run-metrics", units, NewRoster())
	if len(invocations) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(invocations))
	}

	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Errorf("inflight after dispatch = %f, want 0", got)
	}
	if got := testutil.CollectAndCount(m.latency); got == 0 {
		t.Error("expected latency observations after dispatch")
	}
}

package quorum

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dshills/quorum-go/quorum/emit"
	"github.com/dshills/quorum-go/quorum/store"
)

func testCorpus(n int) []Resource {
	corpus := make([]Resource, 0, n)
	for i := 0; i < n; i++ {
		corpus = append(corpus, Resource{
			Path:          fmt.Sprintf("pkg%d/file%d.go", i%3, i),
			EstimatedSize: 50 + i,
		})
	}
	return corpus
}

func TestCoordinator_EndToEnd(t *testing.T) {
	invoker := &stubInvoker{
		fn: func(_ context.Context, req InvokeRequest, _ int) (string, error) {
			return fmt.Sprintf(`{
				"health_score": 0.9,
				"findings": [
					{"severity": "high", "resource": "%s", "line": 3,
					 "description": "shared issue every role can see",
					 "recommendation": "fix it"}
				]
			}`, req.Unit.ResourcePatterns[0]), nil
		},
	}
	memStore := store.NewMemStore[*FinalReport]()
	buffered := emit.NewBufferedEmitter()

	coordinator, err := NewCoordinator(invoker,
		WithConfig(fastConfig()),
		WithEmitter(buffered),
		WithStore(memStore),
	)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	report, err := coordinator.Run(context.Background(), "run-e2e", testCorpus(9))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.CoveragePct != 1.0 {
		t.Errorf("coverage = %v, want 1.0", report.CoveragePct)
	}
	if report.Incomplete {
		t.Error("fully covered run marked incomplete")
	}
	if len(report.Findings) == 0 {
		t.Error("expected accepted findings from unanimous roles")
	}
	for _, f := range report.Findings {
		if f.Priority != PriorityP2 {
			t.Errorf("unanimous high finding priority = %s, want P2", f.Priority)
		}
	}

	// The run was persisted.
	saved, err := memStore.LoadRun(context.Background(), "run-e2e")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if saved.RunID != report.RunID {
		t.Errorf("stored run ID = %q, want %q", saved.RunID, report.RunID)
	}

	// Lifecycle events were emitted.
	if events := buffered.GetHistoryWithFilter("run-e2e", emit.HistoryFilter{Msg: "run_complete"}); len(events) != 1 {
		t.Errorf("got %d run_complete events, want 1", len(events))
	}
	if events := buffered.GetHistoryWithFilter("run-e2e", emit.HistoryFilter{Msg: "run_started"}); len(events) != 1 {
		t.Errorf("got %d run_started events, want 1", len(events))
	}
}

func TestCoordinator_VerifiesClaims(t *testing.T) {
	invoker := &stubInvoker{
		fn: func(_ context.Context, _ InvokeRequest, _ int) (string, error) {
			return `{
				"health_score": 0.8,
				"findings": [],
				"mutations": [{"resource": "confirmed.md", "expected_signal": "exists"},
				              {"resource": "missing.md", "expected_signal": "exists"}]
			}`, nil
		},
	}
	checker := &scriptChecker{answers: map[string][]bool{"confirmed.md": {true}}}
	cfg := fastConfig()
	cfg.VerifyDelay = 1

	coordinator, err := NewCoordinator(invoker,
		WithConfig(cfg),
		WithChecker(checker),
	)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	report, err := coordinator.Run(context.Background(), "run-verify", testCorpus(3))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(report.Escalations) == 0 {
		t.Fatal("claim with absent signal must escalate")
	}
	for _, esc := range report.Escalations {
		if esc.Claim.TargetResource != "missing.md" {
			t.Errorf("escalated %s, want missing.md", esc.Claim.TargetResource)
		}
		if esc.Attempts != 3 {
			t.Errorf("escalation attempts = %d, want 3", esc.Attempts)
		}
	}
}

func TestCoordinator_NoCoverageAborts(t *testing.T) {
	invoker := &stubInvoker{
		fn: func(_ context.Context, _ InvokeRequest, _ int) (string, error) {
			return "nothing parseable in this output", nil
		},
	}

	coordinator, err := NewCoordinator(invoker, WithConfig(fastConfig()))
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	_, err = coordinator.Run(context.Background(), "run-dark", testCorpus(3))
	if !errors.Is(err, ErrNoCoverage) {
		t.Errorf("err = %v, want ErrNoCoverage", err)
	}
}

func TestCoordinator_DegradedUnitsDoNotAbort(t *testing.T) {
	// U1 gets full coverage; every other unit keeps only its quality role.
	invoker := &stubInvoker{
		fn: func(_ context.Context, req InvokeRequest, _ int) (string, error) {
			if req.Unit.ID != "U1" && req.Role != RoleQuality {
				return "", &stubPermanentError{msg: "backend down"}
			}
			return cleanOutput, nil
		},
	}

	coordinator, err := NewCoordinator(invoker, WithConfig(fastConfig()))
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	report, err := coordinator.Run(context.Background(), "run-partial", testCorpus(9))
	if err != nil {
		t.Fatalf("partial failures must not abort the run: %v", err)
	}
	if !report.Incomplete && len(report.Units) > 1 {
		t.Error("run with mostly degraded units should be incomplete")
	}
	if len(report.DegradedUnits) == 0 && len(report.Units) > 1 {
		t.Error("degraded units must be named in the report")
	}
}

func TestNewCoordinator_Validation(t *testing.T) {
	t.Run("nil invoker", func(t *testing.T) {
		_, err := NewCoordinator(nil)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Code != "MISSING_INVOKER" {
			t.Errorf("err = %v, want MISSING_INVOKER ConfigError", err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultRunConfig()
		cfg.OversizeFactor = 0.1
		invoker := &stubInvoker{fn: func(_ context.Context, _ InvokeRequest, _ int) (string, error) {
			return cleanOutput, nil
		}}
		_, err := NewCoordinator(invoker, WithConfig(cfg))
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("err = %v, want ConfigError", err)
		}
	})

	t.Run("invalid roster", func(t *testing.T) {
		invoker := &stubInvoker{fn: func(_ context.Context, _ InvokeRequest, _ int) (string, error) {
			return cleanOutput, nil
		}}
		_, err := NewCoordinator(invoker,
			WithRoster(NewRosterWithWeights(map[Role]float64{RoleQuality: 1})))
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("err = %v, want ConfigError", err)
		}
	})
}

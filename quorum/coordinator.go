package quorum

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/quorum-go/quorum/emit"
)

// ReportSaver persists a finished run. Implementations live in the store
// subpackage; a nil saver means results are not persisted.
type ReportSaver interface {
	SaveRun(ctx context.Context, runID string, report *FinalReport) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRoster replaces the default worker roster.
func WithRoster(roster *Roster) Option {
	return func(c *Coordinator) { c.roster = roster }
}

// WithConfig replaces the default run configuration.
func WithConfig(cfg RunConfig) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// WithPayload sets the prompt payload builder.
func WithPayload(fn PayloadFunc) Option {
	return func(c *Coordinator) { c.payload = fn }
}

// WithEmitter sets the event emitter.
func WithEmitter(emitter emit.Emitter) Option {
	return func(c *Coordinator) { c.emitter = emitter }
}

// WithMetrics sets the Prometheus metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithChecker sets the ground truth checker used to verify mutation claims.
// Without one, claims are not verified and produce no escalations.
func WithChecker(checker Checker) Option {
	return func(c *Coordinator) { c.checker = checker }
}

// WithReapplier sets the reapply hook invoked between verification attempts.
func WithReapplier(r Reapplier) Option {
	return func(c *Coordinator) { c.reapplier = r }
}

// WithStore sets the run persistence backend.
func WithStore(saver ReportSaver) Option {
	return func(c *Coordinator) { c.saver = saver }
}

// Coordinator owns a full analysis run: it partitions the corpus, dispatches
// the worker roster per unit, verifies claimed mutations against ground
// truth, computes per-unit consensus, and synthesizes the final report.
//
// A Coordinator is safe for concurrent use; each Run is independent.
type Coordinator struct {
	invoker   Invoker
	roster    *Roster
	cfg       RunConfig
	payload   PayloadFunc
	emitter   emit.Emitter
	metrics   *Metrics
	checker   Checker
	reapplier Reapplier
	saver     ReportSaver
}

// NewCoordinator creates a Coordinator with the default roster and
// configuration. The invoker is required; everything else is optional.
func NewCoordinator(invoker Invoker, opts ...Option) (*Coordinator, error) {
	if invoker == nil {
		return nil, &ConfigError{Message: "invoker is required", Code: "MISSING_INVOKER"}
	}

	c := &Coordinator{
		invoker: invoker,
		roster:  NewRoster(),
		cfg:     DefaultRunConfig(),
		emitter: emit.NewNullEmitter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg = c.cfg.withDefaults()

	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := c.roster.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Run executes one full analysis of the corpus and returns the final report.
//
// Run aborts only on configuration errors or when not a single unit reaches
// minimum coverage (two surviving roles); every lesser failure degrades the
// affected unit and is itemized in the report instead.
func (c *Coordinator) Run(ctx context.Context, runID string, corpus []Resource) (*FinalReport, error) {
	start := time.Now()

	units, err := Partition(corpus, c.cfg)
	if err != nil {
		return nil, err
	}
	c.emitter.Emit(emit.Event{
		RunID: runID,
		Msg:   "run_started",
		Meta: map[string]interface{}{
			"resources": len(corpus),
			"units":     len(units),
			"invoker":   c.invoker.Name(),
		},
	})

	dispatcher := NewDispatcher(c.invoker, c.payload, c.cfg, c.emitter, c.metrics)
	invocations := dispatcher.Dispatch(ctx, runID, units, c.roster)

	escalations := c.verifyClaims(ctx, runID, invocations)

	agg := NewAggregator(c.cfg)
	results := make([]UnitResult, 0, len(units))
	reached := 0
	for _, unit := range units {
		r := agg.Tally(unit, invocations)
		if r.Coverage == CoverageFull || r.Coverage == CoveragePartial {
			reached++
		}
		results = append(results, r)
	}
	if reached == 0 {
		c.emitter.Emit(emit.Event{
			RunID: runID,
			Msg:   "run_aborted",
			Meta:  map[string]interface{}{"error": ErrNoCoverage.Error()},
		})
		return nil, ErrNoCoverage
	}

	report := NewSynthesizer(c.cfg).Synthesize(runID, units, results, escalations, invocations)

	if c.saver != nil {
		if err := c.saver.SaveRun(ctx, runID, report); err != nil {
			return report, &RunError{
				Message: fmt.Sprintf("persist run %s: %v", runID, err),
				Code:    "STORE_FAILED",
			}
		}
	}

	c.emitter.Emit(emit.Event{
		RunID: runID,
		Msg:   "run_complete",
		Meta: map[string]interface{}{
			"duration_ms":  time.Since(start).Milliseconds(),
			"coverage_pct": report.CoveragePct,
			"incomplete":   report.Incomplete,
			"findings":     len(report.Findings),
			"minority":     len(report.Minority),
			"escalations":  len(report.Escalations),
		},
	})
	return report, nil
}

// verifyClaims collects every mutation claim from surviving invocations and
// verifies them against ground truth. Without a checker this is a no-op.
func (c *Coordinator) verifyClaims(ctx context.Context, runID string, invocations []*Invocation) []EscalationReport {
	if c.checker == nil {
		return nil
	}

	var claims []MutationClaim
	for _, inv := range invocations {
		if !inv.Surviving() {
			continue
		}
		claims = append(claims, inv.Report.Claims...)
	}
	if len(claims) == 0 {
		return nil
	}

	verifier := NewVerifier(c.checker, c.reapplier, c.cfg.VerifyRetries, c.cfg.VerifyDelay)
	results, escalations := verifier.VerifyAll(ctx, claims)

	verified := 0
	for _, r := range results {
		if r.State == ClaimVerified {
			verified++
		}
	}
	for range escalations {
		if c.metrics != nil {
			c.metrics.EscalationRecorded()
		}
	}
	c.emitter.Emit(emit.Event{
		RunID: runID,
		Msg:   "verification_complete",
		Meta: map[string]interface{}{
			"claims":     len(claims),
			"verified":   verified,
			"escalated":  len(escalations),
			"mismatched": len(claims) - verified - len(escalations),
		},
	})
	return escalations
}

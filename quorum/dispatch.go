package quorum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/quorum-go/quorum/emit"
)

// InvokeRequest carries everything a worker backend needs for one invocation.
type InvokeRequest struct {
	// Unit is the work unit to analyze.
	Unit WorkUnit

	// Role is the perspective requested.
	Role Role

	// Payload is the opaque prompt payload built for this (unit, role) pair.
	// The coordinator does not interpret it.
	Payload string
}

// Invoker is the worker invocation interface the dispatcher consumes.
//
// Invoke is opaque and asynchronous from the coordinator's point of view: it
// may time out (the dispatcher enforces the deadline through ctx) or fail.
// Errors implementing Retryable with IsRetryable() == true get exactly one
// retry after a fixed backoff.
//
// Implementations must be safe for concurrent use; the dispatcher calls
// Invoke from many goroutines at once.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
	Name() string
}

// PayloadFunc builds the opaque prompt payload for a (unit, role) pair.
// Payload construction is an external collaborator concern; DefaultPayload
// is a minimal stand-in.
type PayloadFunc func(unit WorkUnit, role Role) string

// DefaultPayload renders a minimal payload naming the role, the unit and its
// resource patterns.
func DefaultPayload(unit WorkUnit, role Role) string {
	return fmt.Sprintf("role=%s unit=%s resources=%s",
		role, unit.ID, strings.Join(unit.ResourcePatterns, ","))
}

// Dispatcher fans the (work unit, assignment) cross product out to the
// worker backend.
//
// Guarantees:
//   - no invocation can block another from completing
//   - every (unit, role) pair ends with exactly one terminal status
//   - partial completion of a unit's roster is allowed and observable
//
// Concurrency is capped by RunConfig.ConcurrencyLimit; each invocation runs
// under a hard per-invocation timeout. Timeouts and transient errors get one
// retry after a fixed backoff, then the invocation is terminal TimedOut or
// Failed. Run-level cancellation propagates to all in-flight invocations,
// which terminate as Failed rather than hang.
type Dispatcher struct {
	invoker Invoker
	payload PayloadFunc
	cfg     RunConfig
	emitter emit.Emitter
	metrics *Metrics
}

// NewDispatcher creates a Dispatcher. emitter and metrics may be nil.
func NewDispatcher(invoker Invoker, payload PayloadFunc, cfg RunConfig, emitter emit.Emitter, metrics *Metrics) *Dispatcher {
	if payload == nil {
		payload = DefaultPayload
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Dispatcher{
		invoker: invoker,
		payload: payload,
		cfg:     cfg.withDefaults(),
		emitter: emitter,
		metrics: metrics,
	}
}

// Dispatch invokes every assignment of every unit and returns one terminal
// Invocation per (unit, role) pair, in roster order.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string, units []WorkUnit, roster *Roster) []*Invocation {
	var invocations []*Invocation
	for _, unit := range units {
		for _, assignment := range roster.For(unit) {
			invocations = append(invocations, &Invocation{
				WorkUnitID: assignment.WorkUnitID,
				Role:       assignment.Role,
				VoteWeight: assignment.VoteWeight,
				Status:     StatusPending,
			})
		}
	}

	unitsByID := make(map[string]WorkUnit, len(units))
	for _, u := range units {
		unitsByID[u.ID] = u
	}

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.ConcurrencyLimit)

	for _, inv := range invocations {
		inv := inv
		g.Go(func() error {
			d.runInvocation(ctx, runID, unitsByID[inv.WorkUnitID], inv)
			return nil
		})
	}
	// Goroutines never return errors; Wait is a pure join.
	_ = g.Wait()

	return invocations
}

// runInvocation drives one invocation to a terminal status: at most two
// attempts, a fixed backoff between them, and a parse of the final output.
func (d *Dispatcher) runInvocation(ctx context.Context, runID string, unit WorkUnit, inv *Invocation) {
	req := InvokeRequest{
		Unit:    unit,
		Role:    inv.Role,
		Payload: d.payload(unit, inv.Role),
	}

	if d.metrics != nil {
		d.metrics.InvocationStarted()
		defer d.metrics.InvocationFinished()
	}

	const maxAttempts = 2
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		inv.Status = StatusRunning
		inv.Attempts = attempt

		start := time.Now()
		raw, err := d.invoke(ctx, req)
		inv.Duration = time.Since(start)

		switch {
		case err == nil:
			d.finishSuccess(runID, inv, raw)
			return

		case ctx.Err() != nil:
			// Run-level cancellation: terminate as Failed, keep partial results.
			inv.Status = StatusFailed
			inv.Err = "run cancelled: " + ctx.Err().Error()
			d.emitTerminal(runID, inv, "cancelled")
			return

		case errors.Is(err, context.DeadlineExceeded):
			inv.Status = StatusTimedOut
			inv.Err = fmt.Sprintf("invocation exceeded timeout of %v", d.cfg.InvocationTimeout)
			if attempt < maxAttempts && d.backoff(ctx, runID, inv, "timeout") {
				continue
			}
			d.emitTerminal(runID, inv, "timeout")
			return

		case isRetryable(err):
			inv.Status = StatusFailed
			inv.Err = err.Error()
			if attempt < maxAttempts && d.backoff(ctx, runID, inv, "transient") {
				continue
			}
			d.emitTerminal(runID, inv, "error")
			return

		default:
			inv.Status = StatusFailed
			inv.Err = err.Error()
			d.emitTerminal(runID, inv, "error")
			return
		}
	}
}

// invoke performs a single attempt under the per-invocation timeout.
func (d *Dispatcher) invoke(ctx context.Context, req InvokeRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.InvocationTimeout)
	defer cancel()

	raw, err := d.invoker.Invoke(attemptCtx, req)
	if err == nil && attemptCtx.Err() == context.DeadlineExceeded {
		// Backend returned after its context expired; treat as a timeout.
		return "", context.DeadlineExceeded
	}
	return raw, err
}

// finishSuccess parses the worker output and sets the terminal status.
func (d *Dispatcher) finishSuccess(runID string, inv *Invocation, raw string) {
	inv.RawOutput = raw

	report, err := ParseWorkerOutput(raw)
	if err != nil {
		inv.Status = StatusMalformed
		inv.Err = err.Error()
		if d.metrics != nil {
			d.metrics.MalformedOutput(string(inv.Role))
		}
		d.emitTerminal(runID, inv, "malformed")
		return
	}

	// Stamp provenance the parser cannot know.
	for i := range report.Findings {
		report.Findings[i].WorkUnitID = inv.WorkUnitID
		report.Findings[i].SourceRoles = []Role{inv.Role}
	}
	for i := range report.Claims {
		report.Claims[i].WorkUnitID = inv.WorkUnitID
		report.Claims[i].Role = inv.Role
	}

	inv.Report = report
	inv.Status = StatusSucceeded
	d.emitTerminal(runID, inv, "success")
}

// backoff waits the fixed retry backoff, recording the retry. Returns false
// when the run was cancelled during the wait.
func (d *Dispatcher) backoff(ctx context.Context, runID string, inv *Invocation, reason string) bool {
	if d.metrics != nil {
		d.metrics.InvocationRetried(string(inv.Role), reason)
	}
	d.emitter.Emit(emit.Event{
		RunID:  runID,
		UnitID: inv.WorkUnitID,
		Role:   string(inv.Role),
		Msg:    "invocation_retry",
		Meta:   map[string]interface{}{"reason": reason, "attempt": inv.Attempts},
	})
	if !sleepCtx(ctx, d.cfg.RetryBackoff) {
		inv.Status = StatusFailed
		inv.Err = "run cancelled during retry backoff"
		d.emitTerminal(runID, inv, "cancelled")
		return false
	}
	return true
}

// emitTerminal records the terminal outcome of an invocation.
func (d *Dispatcher) emitTerminal(runID string, inv *Invocation, status string) {
	if d.metrics != nil {
		d.metrics.InvocationLatency(string(inv.Role), status, inv.Duration)
	}
	meta := map[string]interface{}{
		"status":      inv.Status.String(),
		"attempt":     inv.Attempts,
		"duration_ms": inv.Duration.Milliseconds(),
	}
	if inv.Report != nil {
		meta["findings"] = len(inv.Report.Findings)
	}
	if inv.Err != "" {
		meta["error"] = inv.Err
	}
	d.emitter.Emit(emit.Event{
		RunID:  runID,
		UnitID: inv.WorkUnitID,
		Role:   string(inv.Role),
		Msg:    "invocation_complete",
		Meta:   meta,
	})
}

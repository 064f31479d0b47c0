package quorum

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ClaimState is the verification lifecycle of a mutation claim:
// Unverified -> Verifying -> {Verified | Mismatched}, with Mismatched looping
// back through Verifying until the retry budget is spent, then Escalated.
type ClaimState int

// Claim states. Verified and Escalated are terminal.
const (
	ClaimUnverified ClaimState = iota
	ClaimVerifying
	ClaimVerified
	ClaimMismatched
	ClaimEscalated
)

// String returns the lowercase state name.
func (s ClaimState) String() string {
	switch s {
	case ClaimUnverified:
		return "unverified"
	case ClaimVerifying:
		return "verifying"
	case ClaimVerified:
		return "verified"
	case ClaimMismatched:
		return "mismatched"
	case ClaimEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// MutationClaim is a worker's assertion that it changed external state.
//
// A worker's self-reported success is never trusted: every claim is re-read
// from the authoritative store and checked for the expected signal.
type MutationClaim struct {
	// WorkUnitID and Role identify the invocation that made the claim.
	WorkUnitID string `json:"work_unit_id"`
	Role       Role   `json:"role"`

	// TargetResource is the external resource the worker says it mutated.
	TargetResource string `json:"target_resource"`

	// ExpectedSignal is the observable condition that must now hold on the
	// target (a presence/absence or content-pattern check).
	ExpectedSignal string `json:"expected_signal"`
}

// VerificationResult is the outcome of checking one mutation claim.
type VerificationResult struct {
	Claim    MutationClaim `json:"claim"`
	State    ClaimState    `json:"state"`
	Verified bool          `json:"verified"`
	Attempts int           `json:"attempts"`

	// Evidence is the ordered trail of per-attempt observations, one entry
	// per check performed.
	Evidence []string `json:"evidence"`
}

// EscalationReport is emitted when a claim exhausts its retry budget while
// still mismatched. It is terminal and surfaced to the operator in the final
// report; escalation of one claim never halts the run.
type EscalationReport struct {
	Claim     MutationClaim `json:"claim"`
	Attempts  int           `json:"attempts"`
	Evidence  []string      `json:"evidence_trail"`
	Diagnosis string        `json:"diagnosis"`
}

// Checker reads a claimed target resource from its authoritative store and
// reports whether the expected signal holds. Check must be idempotent and
// side-effect-free; the orchestrator never locks external resources.
type Checker interface {
	Check(ctx context.Context, resource, signal string) (bool, error)
}

// Reapplier re-runs the mutating action behind a claim. Optional: when the
// verifier has no reapplier, a retry is a plain re-check (useful when the
// store is eventually consistent).
type Reapplier interface {
	Reapply(ctx context.Context, claim MutationClaim) error
}

// Verifier drives the claim state machine for every mutation claim a run
// collects.
type Verifier struct {
	truth   Checker
	reapply Reapplier
	retries int
	delay   time.Duration
}

// NewVerifier creates a Verifier.
//
// Parameters:
//   - truth: ground-truth checker (required)
//   - reapply: action re-runner, may be nil
//   - retries: re-attempts after the first mismatch
//   - delay: fixed delay between attempts
func NewVerifier(truth Checker, reapply Reapplier, retries int, delay time.Duration) *Verifier {
	return &Verifier{
		truth:   truth,
		reapply: reapply,
		retries: retries,
		delay:   delay,
	}
}

// Verify runs one claim through the state machine.
//
// Each attempt re-reads the target from ground truth. A confirmed signal is
// terminal Verified - a claim verified on the first check never re-applies or
// escalates. A mismatch re-applies the action (when a reapplier is present),
// waits the fixed delay, and checks again, up to the retry budget. A claim
// still mismatched after the budget transitions to Escalated and the second
// return value carries the report.
func (v *Verifier) Verify(ctx context.Context, claim MutationClaim) (VerificationResult, *EscalationReport) {
	result := VerificationResult{Claim: claim, State: ClaimUnverified}
	attempts := v.retries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		result.State = ClaimVerifying
		result.Attempts = attempt

		ok, err := v.truth.Check(ctx, claim.TargetResource, claim.ExpectedSignal)
		switch {
		case err != nil:
			result.Evidence = append(result.Evidence,
				fmt.Sprintf("attempt %d: check error on %s: %v", attempt, claim.TargetResource, err))
		case ok:
			result.Evidence = append(result.Evidence,
				fmt.Sprintf("attempt %d: signal %q confirmed on %s", attempt, claim.ExpectedSignal, claim.TargetResource))
			result.State = ClaimVerified
			result.Verified = true
			return result, nil
		default:
			result.Evidence = append(result.Evidence,
				fmt.Sprintf("attempt %d: signal %q absent on %s", attempt, claim.ExpectedSignal, claim.TargetResource))
		}

		result.State = ClaimMismatched

		if attempt == attempts {
			break
		}
		if v.reapply != nil {
			if err := v.reapply.Reapply(ctx, claim); err != nil {
				result.Evidence = append(result.Evidence,
					fmt.Sprintf("attempt %d: reapply failed: %v", attempt, err))
			}
		}
		if !sleepCtx(ctx, v.delay) {
			break
		}
	}

	result.State = ClaimEscalated
	return result, &EscalationReport{
		Claim:     claim,
		Attempts:  result.Attempts,
		Evidence:  result.Evidence,
		Diagnosis: diagnose(result.Evidence),
	}
}

// VerifyAll verifies claims concurrently, one goroutine per claim; no claim
// blocks another and escalations do not stop the run. Results and
// escalations preserve the input claim order.
func (v *Verifier) VerifyAll(ctx context.Context, claims []MutationClaim) ([]VerificationResult, []EscalationReport) {
	results := make([]VerificationResult, len(claims))
	escalated := make([]*EscalationReport, len(claims))

	var wg sync.WaitGroup
	for i, claim := range claims {
		wg.Add(1)
		go func(i int, claim MutationClaim) {
			defer wg.Done()
			results[i], escalated[i] = v.Verify(ctx, claim)
		}(i, claim)
	}
	wg.Wait()

	var escalations []EscalationReport
	for _, esc := range escalated {
		if esc != nil {
			escalations = append(escalations, *esc)
		}
	}
	return results, escalations
}

// diagnose produces a best-effort diagnosis from the evidence trail.
func diagnose(evidence []string) string {
	for i := len(evidence) - 1; i >= 0; i-- {
		if strings.Contains(evidence[i], "check error") {
			return "ground-truth store unreachable or erroring; last: " + evidence[i]
		}
	}
	return "expected signal never observed after exhausting retry budget"
}

// sleepCtx sleeps for d unless the context is cancelled first.
// Returns false when cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package quorum

import (
	"math"
	"testing"
)

// survivingInvocation builds a succeeded invocation carrying the given
// findings.
func survivingInvocation(unitID string, role Role, weight float64, health float64, findings ...Finding) *Invocation {
	for i := range findings {
		findings[i].WorkUnitID = unitID
		findings[i].SourceRoles = []Role{role}
	}
	return &Invocation{
		WorkUnitID: unitID,
		Role:       role,
		VoteWeight: weight,
		Status:     StatusSucceeded,
		Attempts:   1,
		Report:     &WorkerReport{HealthScore: health, Findings: findings},
	}
}

func highFinding(resource string, line int, desc string) Finding {
	return Finding{
		Severity:    SeverityHigh,
		Location:    Location{Resource: resource, Line: line},
		Description: desc,
	}
}

func TestTally_UnanimousHighAccepted(t *testing.T) {
	unit := WorkUnit{ID: "U1"}
	invocations := []*Invocation{
		survivingInvocation("U1", RoleQuality, 1.0, 0.8, highFinding("pkg/db/conn.go", 42, "connection pool is never closed")),
		survivingInvocation("U1", RoleImplementation, 1.0, 0.7, highFinding("pkg/db/conn.go", 44, "connection pool never closed")),
		survivingInvocation("U1", RoleDesign, 1.2, 0.9, highFinding("pkg/db/conn.go", 42, "connection pool is never closed")),
	}

	result := NewAggregator(DefaultRunConfig()).Tally(unit, invocations)

	if result.Coverage != CoverageFull {
		t.Errorf("coverage = %s, want full", result.Coverage)
	}
	if math.Abs(result.TotalWeight-3.2) > 1e-9 {
		t.Errorf("total weight = %v, want 3.2", result.TotalWeight)
	}
	if len(result.Accepted) != 1 {
		t.Fatalf("got %d accepted findings, want 1 (merged)", len(result.Accepted))
	}
	if len(result.Minority) != 0 {
		t.Errorf("got %d minority findings, want 0", len(result.Minority))
	}

	tally := result.Accepted[0]
	if math.Abs(tally.ConsensusPct-1.0) > 1e-9 {
		t.Errorf("consensus = %v, want 1.0", tally.ConsensusPct)
	}
	if len(tally.Finding.SourceRoles) != 3 {
		t.Errorf("source roles = %v, want all three", tally.Finding.SourceRoles)
	}

	avgHealth := (0.8 + 0.7 + 0.9) / 3
	if math.Abs(result.HealthScore-avgHealth) > 1e-9 {
		t.Errorf("health = %v, want %v", result.HealthScore, avgHealth)
	}
}

func TestTally_MinorityMediumOnOversizedUnit(t *testing.T) {
	unit := WorkUnit{ID: "U2", Oversized: true}
	medium := Finding{
		Severity:    SeverityMedium,
		Location:    Location{Resource: "pkg/api/handler.go", Line: 10},
		Description: "handler swallows context cancellation",
	}
	invocations := []*Invocation{
		survivingInvocation("U2", RoleQuality, 1.0, 0.8, medium),
		survivingInvocation("U2", RoleImplementation, 1.0, 0.8, medium),
		survivingInvocation("U2", RoleDesign, 1.2, 0.8),
		survivingInvocation("U2", RoleComplexity, 1.5, 0.8),
	}

	result := NewAggregator(DefaultRunConfig()).Tally(unit, invocations)

	if math.Abs(result.TotalWeight-4.7) > 1e-9 {
		t.Errorf("total weight = %v, want 4.7", result.TotalWeight)
	}
	if len(result.Accepted) != 0 {
		t.Fatalf("got %d accepted, want 0", len(result.Accepted))
	}
	if len(result.Minority) != 1 {
		t.Fatalf("got %d minority, want 1", len(result.Minority))
	}

	// 2.0 of 4.7 is about 42.6%, short of the 60% medium threshold.
	pct := result.Minority[0].ConsensusPct
	if math.Abs(pct-2.0/4.7) > 1e-9 {
		t.Errorf("consensus = %v, want %v", pct, 2.0/4.7)
	}
}

func TestTally_CriticalRequiresUnanimity(t *testing.T) {
	unit := WorkUnit{ID: "U3", Oversized: true}
	critical := Finding{
		Severity:    SeverityCritical,
		Location:    Location{Resource: "pkg/auth/token.go", Line: 7},
		Description: "signing key logged in plaintext",
	}
	invocations := []*Invocation{
		survivingInvocation("U3", RoleQuality, 1.0, 0.5, critical),
		survivingInvocation("U3", RoleImplementation, 1.0, 0.5, critical),
		survivingInvocation("U3", RoleDesign, 1.2, 0.5, critical),
		survivingInvocation("U3", RoleComplexity, 1.5, 0.5),
	}

	result := NewAggregator(DefaultRunConfig()).Tally(unit, invocations)

	// 3.2/4.7 is a strong majority but critical needs every surviving voice.
	if len(result.Accepted) != 0 {
		t.Fatalf("critical finding accepted without unanimity")
	}
	if len(result.Minority) != 1 {
		t.Fatalf("got %d minority, want 1", len(result.Minority))
	}
	if result.Minority[0].Finding.Severity != SeverityCritical {
		t.Errorf("minority severity = %s, want critical", result.Minority[0].Finding.Severity)
	}
}

func TestTally_DenominatorExcludesNonSurvivors(t *testing.T) {
	unit := WorkUnit{ID: "U4"}
	finding := highFinding("pkg/io/reader.go", 12, "read loop ignores short reads")
	invocations := []*Invocation{
		survivingInvocation("U4", RoleQuality, 1.0, 0.8, finding),
		survivingInvocation("U4", RoleImplementation, 1.0, 0.8, finding),
		{WorkUnitID: "U4", Role: RoleDesign, VoteWeight: 1.2, Status: StatusTimedOut, Attempts: 2},
	}

	result := NewAggregator(DefaultRunConfig()).Tally(unit, invocations)

	if result.Coverage != CoveragePartial {
		t.Errorf("coverage = %s, want partial", result.Coverage)
	}
	if math.Abs(result.TotalWeight-2.0) > 1e-9 {
		t.Errorf("total weight = %v, want 2.0 (timed-out role excluded)", result.TotalWeight)
	}
	if len(result.Accepted) != 1 {
		t.Fatalf("got %d accepted, want 1", len(result.Accepted))
	}
	if math.Abs(result.Accepted[0].ConsensusPct-1.0) > 1e-9 {
		t.Errorf("consensus = %v, want 1.0 among survivors", result.Accepted[0].ConsensusPct)
	}
}

func TestTally_DegradedUnitAcceptsNothing(t *testing.T) {
	unit := WorkUnit{ID: "U5"}
	invocations := []*Invocation{
		survivingInvocation("U5", RoleQuality, 1.0, 0.9, highFinding("a.go", 1, "important issue")),
		{WorkUnitID: "U5", Role: RoleImplementation, VoteWeight: 1.0, Status: StatusFailed},
		{WorkUnitID: "U5", Role: RoleDesign, VoteWeight: 1.2, Status: StatusMalformed},
	}

	result := NewAggregator(DefaultRunConfig()).Tally(unit, invocations)

	if result.Coverage != CoverageDegraded {
		t.Errorf("coverage = %s, want degraded", result.Coverage)
	}
	if len(result.Accepted) != 0 {
		t.Error("degraded unit must not accept findings")
	}
	if len(result.Minority) != 1 {
		t.Errorf("got %d minority, want 1 (reported, not dropped)", len(result.Minority))
	}
}

func TestTally_SkippedUnit(t *testing.T) {
	unit := WorkUnit{ID: "U6"}
	invocations := []*Invocation{
		{WorkUnitID: "U6", Role: RoleQuality, VoteWeight: 1.0, Status: StatusTimedOut},
		{WorkUnitID: "U6", Role: RoleImplementation, VoteWeight: 1.0, Status: StatusTimedOut},
		{WorkUnitID: "U6", Role: RoleDesign, VoteWeight: 1.2, Status: StatusTimedOut},
	}

	result := NewAggregator(DefaultRunConfig()).Tally(unit, invocations)

	if result.Coverage != CoverageSkipped {
		t.Errorf("coverage = %s, want skipped", result.Coverage)
	}
	if result.Surviving != 0 || result.TotalWeight != 0 {
		t.Errorf("surviving = %d weight = %v, want zero", result.Surviving, result.TotalWeight)
	}
}

func TestTally_DistinctFindingsNotMerged(t *testing.T) {
	unit := WorkUnit{ID: "U7"}
	invocations := []*Invocation{
		survivingInvocation("U7", RoleQuality, 1.0, 0.8,
			highFinding("a.go", 10, "unchecked error return from Close")),
		survivingInvocation("U7", RoleImplementation, 1.0, 0.8,
			highFinding("b.go", 10, "unchecked error return from Close")),
		survivingInvocation("U7", RoleDesign, 1.2, 0.8,
			highFinding("a.go", 200, "completely unrelated naming problem")),
	}

	result := NewAggregator(DefaultRunConfig()).Tally(unit, invocations)

	// Different resources and distant lines stay separate.
	total := len(result.Accepted) + len(result.Minority)
	if total != 3 {
		t.Errorf("got %d distinct findings, want 3", total)
	}
}

func TestTally_Deterministic(t *testing.T) {
	unit := WorkUnit{ID: "U8"}
	finding := highFinding("a.go", 5, "shared issue")
	build := func(order []int) []*Invocation {
		all := []*Invocation{
			survivingInvocation("U8", RoleQuality, 1.0, 0.8, finding),
			survivingInvocation("U8", RoleImplementation, 1.0, 0.8, finding),
			survivingInvocation("U8", RoleDesign, 1.2, 0.8),
		}
		out := make([]*Invocation, len(all))
		for i, idx := range order {
			out[i] = all[idx]
		}
		return out
	}

	agg := NewAggregator(DefaultRunConfig())
	first := agg.Tally(unit, build([]int{0, 1, 2}))
	second := agg.Tally(unit, build([]int{2, 1, 0}))

	if len(first.Accepted) != len(second.Accepted) || len(first.Minority) != len(second.Minority) {
		t.Fatal("tally outcome depends on invocation completion order")
	}
	for i := range first.Accepted {
		if first.Accepted[i].ConsensusPct != second.Accepted[i].ConsensusPct {
			t.Errorf("accepted[%d] consensus differs across orders", i)
		}
	}
}

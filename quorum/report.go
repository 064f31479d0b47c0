package quorum

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Priority is the report tier of a finding, P1 (highest) through P5.
type Priority string

// Priority tiers.
const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
	PriorityP5 Priority = "P5"
)

// priorityFor derives the tier from severity and consensus level:
// critical+unanimous -> P1; critical+majority or high+unanimous -> P2;
// high+majority -> P3; medium -> P4; low and info -> P5.
func priorityFor(severity Severity, consensusPct float64) Priority {
	const epsilon = 1e-9
	unanimous := consensusPct >= 1.0-epsilon
	majority := consensusPct >= 0.5

	switch severity {
	case SeverityCritical:
		if unanimous {
			return PriorityP1
		}
		if majority {
			return PriorityP2
		}
		return PriorityP3
	case SeverityHigh:
		if unanimous {
			return PriorityP2
		}
		return PriorityP3
	case SeverityMedium:
		return PriorityP4
	default:
		return PriorityP5
	}
}

// ReportFinding is a finding as it appears in the final report, after
// cross-unit deduplication and prioritization.
type ReportFinding struct {
	Finding       Finding  `json:"finding"`
	WeightedScore float64  `json:"weighted_score"`
	ConsensusPct  float64  `json:"consensus_pct"`
	Priority      Priority `json:"priority"`

	// Units lists every work unit the finding was independently raised in.
	Units []string `json:"units"`

	// CrossCutting marks findings confirmed in two or more units; their
	// severity was raised one level during the merge.
	CrossCutting bool `json:"cross_cutting"`
}

// UnitCoverage summarizes one work unit's roster outcome for the report.
type UnitCoverage struct {
	WorkUnitID  string         `json:"work_unit_id"`
	Label       string         `json:"label"`
	Status      CoverageStatus `json:"status"`
	Rostered    int            `json:"rostered"`
	Surviving   int            `json:"surviving"`
	Malformed   int            `json:"malformed"`
	TimedOut    int            `json:"timed_out"`
	Failed      int            `json:"failed"`
	HealthScore float64        `json:"health_score"`
}

// FinalReport is the single output of a run: prioritized accepted findings,
// minority views, escalations, and per-unit coverage. Failure is always
// itemized - silence never represents it.
type FinalReport struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	// CoveragePct is the fraction of units with at least two surviving
	// roles.
	CoveragePct float64 `json:"coverage_pct"`

	// Incomplete is set when CoveragePct falls below the configured minimum;
	// DegradedUnits then names every degraded or skipped unit.
	Incomplete    bool     `json:"incomplete"`
	DegradedUnits []string `json:"degraded_units,omitempty"`

	// Findings are accepted findings, sorted by priority tier then weighted
	// score descending.
	Findings []ReportFinding `json:"findings"`

	// Minority are below-threshold findings, reported separately rather than
	// dropped.
	Minority []ReportFinding `json:"minority"`

	// Escalations are mutation claims that exhausted their retry budget
	// unverified.
	Escalations []EscalationReport `json:"escalations"`

	// Units is the per-unit coverage breakdown.
	Units []UnitCoverage `json:"units"`
}

// Synthesizer merges per-unit results into the final report.
//
// Synthesis is a deterministic single pass: it consumes all unit tallies
// (accepted and minority), all escalation reports, and all terminal
// invocations, and produces one FinalReport.
type Synthesizer struct {
	cfg RunConfig
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(cfg RunConfig) *Synthesizer {
	return &Synthesizer{cfg: cfg.withDefaults()}
}

// Synthesize builds the final report.
//
// Cross-unit deduplication happens here: accepted findings whose location
// resolves to the same resource with overlapping descriptions across units
// merge into one cross-cutting entry with severity raised one level and
// provenance preserved per origin unit.
func (s *Synthesizer) Synthesize(runID string, units []WorkUnit, results []UnitResult, escalations []EscalationReport, invocations []*Invocation) *FinalReport {
	report := &FinalReport{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Escalations: escalations,
	}

	resultByUnit := make(map[string]UnitResult, len(results))
	for _, r := range results {
		resultByUnit[r.WorkUnitID] = r
	}

	covered := 0
	for _, unit := range units {
		r := resultByUnit[unit.ID]
		uc := UnitCoverage{
			WorkUnitID:  unit.ID,
			Label:       unit.Label,
			Status:      r.Coverage,
			Surviving:   r.Surviving,
			HealthScore: r.HealthScore,
		}
		for _, inv := range invocations {
			if inv.WorkUnitID != unit.ID {
				continue
			}
			uc.Rostered++
			switch inv.Status {
			case StatusMalformed:
				uc.Malformed++
			case StatusTimedOut:
				uc.TimedOut++
			case StatusFailed:
				uc.Failed++
			}
		}
		if r.Coverage == CoverageFull || r.Coverage == CoveragePartial {
			covered++
		} else {
			report.DegradedUnits = append(report.DegradedUnits, unit.ID)
		}
		report.Units = append(report.Units, uc)
	}

	if len(units) > 0 {
		report.CoveragePct = float64(covered) / float64(len(units))
	}
	report.Incomplete = report.CoveragePct < s.cfg.MinCoveragePct

	var accepted, minority []VoteTally
	for _, r := range results {
		accepted = append(accepted, r.Accepted...)
		minority = append(minority, r.Minority...)
	}
	report.Findings = s.mergeAcrossUnits(accepted)
	report.Minority = s.mergeAcrossUnits(minority)

	sortReportFindings(report.Findings)
	sortReportFindings(report.Minority)
	return report
}

// mergeAcrossUnits deduplicates tallies from different work units. Entries
// confirmed in two or more units become a single cross-cutting finding with
// severity raised one level; the priority tier is assigned after merging.
func (s *Synthesizer) mergeAcrossUnits(tallies []VoteTally) []ReportFinding {
	agg := NewAggregator(s.cfg)
	var merged []ReportFinding

	for _, tally := range tallies {
		idx := -1
		for i := range merged {
			if agg.sameFinding(merged[i].Finding, tally.Finding) {
				idx = i
				break
			}
		}
		if idx == -1 {
			rf := ReportFinding{
				Finding:       tally.Finding,
				WeightedScore: tally.WeightedScore,
				ConsensusPct:  tally.ConsensusPct,
				Units:         []string{tally.Finding.WorkUnitID},
			}
			merged = append(merged, rf)
			continue
		}

		entry := &merged[idx]
		if !containsString(entry.Units, tally.Finding.WorkUnitID) {
			entry.Units = append(entry.Units, tally.Finding.WorkUnitID)
			sort.Strings(entry.Units)
		}
		for _, role := range tally.Finding.SourceRoles {
			entry.Finding.addRole(role)
		}
		mergeFindingText(&entry.Finding, tally.Finding)
		if tally.WeightedScore > entry.WeightedScore {
			entry.WeightedScore = tally.WeightedScore
		}
		if tally.ConsensusPct > entry.ConsensusPct {
			entry.ConsensusPct = tally.ConsensusPct
		}
	}

	for i := range merged {
		if len(merged[i].Units) >= 2 {
			merged[i].CrossCutting = true
			merged[i].Finding.Severity = merged[i].Finding.Severity.Raise()
		}
		merged[i].Priority = priorityFor(merged[i].Finding.Severity, merged[i].ConsensusPct)
	}
	return merged
}

// sortReportFindings orders by priority tier, then weighted score
// descending, then location.
func sortReportFindings(findings []ReportFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Priority != findings[j].Priority {
			return findings[i].Priority < findings[j].Priority
		}
		if findings[i].WeightedScore != findings[j].WeightedScore {
			return findings[i].WeightedScore > findings[j].WeightedScore
		}
		li, lj := findings[i].Finding.Location, findings[j].Finding.Location
		if li.Resource != lj.Resource {
			return li.Resource < lj.Resource
		}
		return li.Line < lj.Line
	})
}

// JSON renders the report as indented JSON.
func (r *FinalReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the report as a human-readable document. An incomplete
// run is prefixed with an explicit INCOMPLETE_ANALYSIS warning naming every
// degraded or skipped unit.
func (r *FinalReport) Markdown() string {
	var sb strings.Builder

	if r.Incomplete {
		sb.WriteString("> **INCOMPLETE_ANALYSIS**: coverage ")
		fmt.Fprintf(&sb, "%.0f%%", r.CoveragePct*100)
		sb.WriteString(" is below the required minimum. Affected units: ")
		sb.WriteString(strings.Join(r.DegradedUnits, ", "))
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "# Analysis Report: %s\n\n", r.RunID)
	fmt.Fprintf(&sb, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Coverage: %.0f%% (%d units)\n\n", r.CoveragePct*100, len(r.Units))

	sb.WriteString("## Findings\n\n")
	if len(r.Findings) == 0 {
		sb.WriteString("No findings met consensus.\n\n")
	}
	for _, tier := range []Priority{PriorityP1, PriorityP2, PriorityP3, PriorityP4, PriorityP5} {
		wrote := false
		for _, f := range r.Findings {
			if f.Priority != tier {
				continue
			}
			if !wrote {
				fmt.Fprintf(&sb, "### %s\n\n", tier)
				wrote = true
			}
			writeFinding(&sb, f)
		}
		if wrote {
			sb.WriteString("\n")
		}
	}

	if len(r.Minority) > 0 {
		sb.WriteString("## Minority Views\n\n")
		sb.WriteString("Raised below consensus threshold; not accepted, not dropped.\n\n")
		for _, f := range r.Minority {
			writeFinding(&sb, f)
		}
		sb.WriteString("\n")
	}

	if len(r.Escalations) > 0 {
		sb.WriteString("## Escalations\n\n")
		for _, esc := range r.Escalations {
			fmt.Fprintf(&sb, "- **%s** (unit %s, role %s): %d attempts exhausted. %s\n",
				esc.Claim.TargetResource, esc.Claim.WorkUnitID, esc.Claim.Role, esc.Attempts, esc.Diagnosis)
			for _, ev := range esc.Evidence {
				fmt.Fprintf(&sb, "  - %s\n", ev)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Coverage\n\n")
	sb.WriteString("| Unit | Label | Status | Surviving | Malformed | Timed out | Failed | Health |\n")
	sb.WriteString("|------|-------|--------|-----------|-----------|-----------|--------|--------|\n")
	for _, u := range r.Units {
		fmt.Fprintf(&sb, "| %s | %s | %s | %d/%d | %d | %d | %d | %.2f |\n",
			u.WorkUnitID, u.Label, u.Status, u.Surviving, u.Rostered, u.Malformed, u.TimedOut, u.Failed, u.HealthScore)
	}

	return sb.String()
}

func writeFinding(sb *strings.Builder, f ReportFinding) {
	loc := f.Finding.Location.Resource
	if f.Finding.Location.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, f.Finding.Location.Line)
	}
	roles := make([]string, len(f.Finding.SourceRoles))
	for i, role := range f.Finding.SourceRoles {
		roles[i] = string(role)
	}
	fmt.Fprintf(sb, "- [%s] **%s** %s — %s", f.Priority, f.Finding.Severity, loc, f.Finding.Description)
	if f.Finding.Recommendation != "" {
		fmt.Fprintf(sb, " (fix: %s)", f.Finding.Recommendation)
	}
	fmt.Fprintf(sb, " — consensus %.0f%%, roles %s", f.ConsensusPct*100, strings.Join(roles, "/"))
	if f.CrossCutting {
		fmt.Fprintf(sb, ", cross-cutting in %s", strings.Join(f.Units, "+"))
	}
	sb.WriteString("\n")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Package quorum implements a coordinator for fan-out analysis runs: a corpus
// is partitioned into work units, a fixed roster of weighted worker roles is
// dispatched per unit, structured findings are collected and voted on with
// weighted quorum rules, claimed side effects are verified against ground
// truth, and everything is merged into one prioritized, deduplicated report.
package quorum

import "sort"

// Severity classifies how serious a finding is.
//
// Severities are ordered: critical > high > medium > low > info. The ordering
// drives both consensus thresholds (more severe findings need broader
// agreement) and report prioritization.
type Severity string

// Valid severity levels, most severe first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank maps severity levels to numeric priorities for sorting and
// comparison. Higher values indicate more severe findings.
var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

// Rank returns the numeric rank of the severity (5 = critical, 1 = info).
// Unknown severities rank 0, below info.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the five known severity levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Raise returns the severity one level above s, capped at critical.
// Used when a finding is confirmed independently across multiple work units.
func (s Severity) Raise() Severity {
	switch s {
	case SeverityInfo:
		return SeverityLow
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Location identifies where in the corpus a finding was raised.
type Location struct {
	// Resource is the path of the resource the finding refers to.
	Resource string `json:"resource"`

	// Line is the 1-indexed line number, or 0 for resource-level findings.
	Line int `json:"line"`
}

// Finding is a single issue raised by one or more worker roles against a
// work unit.
//
// Findings are produced by the result parser from individual invocations and
// later merged by the aggregator when multiple roles raise the same issue
// (same location, overlapping description). SourceRoles records which roles
// contributed; it is the only field the aggregator mutates when merging.
type Finding struct {
	// WorkUnitID is the unit this finding was raised against.
	WorkUnitID string `json:"work_unit_id"`

	// Severity is the finding's severity level.
	Severity Severity `json:"severity"`

	// Location is where the finding applies.
	Location Location `json:"location"`

	// Description is what the issue is.
	Description string `json:"description"`

	// Recommendation is how to address the issue.
	Recommendation string `json:"recommendation"`

	// SourceRoles lists the roles that raised this finding, sorted.
	SourceRoles []Role `json:"source_roles"`
}

// addRole records a contributing role, keeping SourceRoles sorted and unique.
func (f *Finding) addRole(role Role) {
	for _, r := range f.SourceRoles {
		if r == role {
			return
		}
	}
	f.SourceRoles = append(f.SourceRoles, role)
	sort.Slice(f.SourceRoles, func(i, j int) bool {
		return f.SourceRoles[i] < f.SourceRoles[j]
	})
}

// VoteTally is the weighted-vote outcome for one distinct finding within a
// work unit.
//
// WeightedScore is the sum of vote weights of the surviving invocations that
// raised the finding. ConsensusPct is that score divided by the total weight
// of all surviving invocations for the unit - never a hard-coded constant, so
// adding a fourth role to an oversized unit does not shift the acceptance bar.
type VoteTally struct {
	Finding       Finding `json:"finding"`
	WeightedScore float64 `json:"weighted_score"`
	ConsensusPct  float64 `json:"consensus_pct"`
	Accepted      bool    `json:"accepted"`
}

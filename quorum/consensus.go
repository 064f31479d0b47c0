package quorum

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// CoverageStatus describes how trustworthy a work unit's analysis is.
type CoverageStatus string

// Coverage levels. A unit needs at least two surviving roles to count
// toward overall coverage.
const (
	CoverageFull     CoverageStatus = "full"     // every rostered role survived
	CoveragePartial  CoverageStatus = "partial"  // >= 2 roles survived
	CoverageDegraded CoverageStatus = "degraded" // exactly 1 role survived
	CoverageSkipped  CoverageStatus = "skipped"  // no role survived
)

// UnitResult is the per-unit outcome of consensus aggregation.
type UnitResult struct {
	// WorkUnitID identifies the unit.
	WorkUnitID string `json:"work_unit_id"`

	// Coverage classifies the unit's surviving roster.
	Coverage CoverageStatus `json:"coverage"`

	// TotalWeight is the consensus denominator: the sum of vote weights over
	// exactly the surviving invocations for this unit.
	TotalWeight float64 `json:"total_weight"`

	// Accepted holds tallies that met their severity's consensus threshold.
	Accepted []VoteTally `json:"accepted"`

	// Minority holds tallies below threshold. Critical findings short of
	// unanimity land here - demoted, never silently dropped.
	Minority []VoteTally `json:"minority"`

	// HealthScore is the mean of the surviving workers' health scores.
	HealthScore float64 `json:"health_score"`

	// Surviving counts invocations that produced a votable report.
	Surviving int `json:"surviving"`
}

// Aggregator computes weighted-quorum consensus per work unit.
//
// Aggregation is a pure function of the terminal invocations: re-running it
// on the same set always yields the same tallies, in the same order.
type Aggregator struct {
	cfg RunConfig
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg RunConfig) *Aggregator {
	return &Aggregator{cfg: cfg.withDefaults()}
}

// Tally aggregates one unit's terminal invocations into a UnitResult.
//
// For each distinct finding (same resource, nearby line, overlapping
// description), the weights of the surviving roles that raised it are summed
// and divided by the unit's total surviving weight. The acceptance threshold
// comes from the configured severity map; critical findings additionally
// require unanimity among surviving roles.
//
// A unit with exactly one surviving invocation is flagged Degraded and all
// its tallies are reported as minority views: a single voice cannot be
// "unanimous" in any meaningful sense.
func (a *Aggregator) Tally(unit WorkUnit, invocations []*Invocation) UnitResult {
	result := UnitResult{WorkUnitID: unit.ID}

	// Stable input order keeps aggregation deterministic regardless of the
	// order invocations finished in.
	sorted := make([]*Invocation, 0, len(invocations))
	for _, inv := range invocations {
		if inv.WorkUnitID == unit.ID {
			sorted = append(sorted, inv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Role < sorted[j].Role })

	var surviving []*Invocation
	var healthSum float64
	for _, inv := range sorted {
		if inv.Surviving() {
			surviving = append(surviving, inv)
			result.TotalWeight += inv.VoteWeight
			healthSum += inv.Report.HealthScore
		}
	}
	result.Surviving = len(surviving)
	result.Coverage = coverageFor(len(surviving), len(sorted))
	if len(surviving) > 0 {
		result.HealthScore = healthSum / float64(len(surviving))
	}
	if len(surviving) == 0 {
		return result
	}

	groups := a.groupFindings(surviving)

	for _, g := range groups {
		tally := VoteTally{
			Finding:       g.finding,
			WeightedScore: g.weight,
			ConsensusPct:  g.weight / result.TotalWeight,
		}
		tally.Accepted = a.accepted(tally, result.Coverage)
		if tally.Accepted {
			result.Accepted = append(result.Accepted, tally)
		} else {
			result.Minority = append(result.Minority, tally)
		}
	}

	sortTallies(result.Accepted)
	sortTallies(result.Minority)
	return result
}

// accepted applies the severity threshold map. Critical requires unanimity;
// degraded units accept nothing.
func (a *Aggregator) accepted(tally VoteTally, coverage CoverageStatus) bool {
	if coverage == CoverageDegraded || coverage == CoverageSkipped {
		return false
	}
	const epsilon = 1e-9
	if tally.Finding.Severity == SeverityCritical {
		return tally.ConsensusPct >= 1.0-epsilon
	}
	threshold, ok := a.cfg.SeverityThresholds[tally.Finding.Severity]
	if !ok {
		return false
	}
	return tally.ConsensusPct+epsilon >= threshold
}

// findingGroup collects one distinct finding and the roles that raised it.
type findingGroup struct {
	finding Finding
	weight  float64
	roles   map[Role]bool
}

// groupFindings merges findings raised by different roles when they point at
// the same location with overlapping descriptions. A role contributes its
// weight to a group at most once.
func (a *Aggregator) groupFindings(surviving []*Invocation) []*findingGroup {
	var groups []*findingGroup

	for _, inv := range surviving {
		for _, f := range inv.Report.Findings {
			g := a.matchGroup(groups, f)
			if g == nil {
				copyF := f
				copyF.SourceRoles = nil
				copyF.addRole(inv.Role)
				groups = append(groups, &findingGroup{
					finding: copyF,
					weight:  inv.VoteWeight,
					roles:   map[Role]bool{inv.Role: true},
				})
				continue
			}
			if !g.roles[inv.Role] {
				g.roles[inv.Role] = true
				g.weight += inv.VoteWeight
				g.finding.addRole(inv.Role)
			}
			mergeFindingText(&g.finding, f)
		}
	}
	return groups
}

// matchGroup finds an existing group the finding belongs to, or nil.
func (a *Aggregator) matchGroup(groups []*findingGroup, f Finding) *findingGroup {
	for _, g := range groups {
		if a.sameFinding(g.finding, f) {
			return g
		}
	}
	return nil
}

// sameFinding reports whether two findings are "the same" for voting:
// identical resource, lines within the configured proximity, and
// descriptions whose normalized Levenshtein similarity meets the configured
// threshold. The similarity measure and threshold are tunable; there is no
// universally right value.
func (a *Aggregator) sameFinding(x, y Finding) bool {
	if x.Location.Resource != y.Location.Resource {
		return false
	}
	lineDiff := x.Location.Line - y.Location.Line
	if lineDiff < 0 {
		lineDiff = -lineDiff
	}
	if lineDiff > a.cfg.LineProximity {
		return false
	}
	return descriptionSimilarity(x.Description, y.Description) >= a.cfg.SimilarityThreshold
}

// descriptionSimilarity is 1 - levenshtein distance normalized by the longer
// string. Two empty descriptions are identical.
func descriptionSimilarity(x, y string) float64 {
	maxLen := len(x)
	if len(y) > maxLen {
		maxLen = len(y)
	}
	if maxLen == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(x, y)
	return 1.0 - float64(distance)/float64(maxLen)
}

// mergeFindingText keeps the most severe severity and the most detailed
// description and recommendation across a group's contributions.
func mergeFindingText(dst *Finding, src Finding) {
	if src.Severity.Rank() > dst.Severity.Rank() {
		dst.Severity = src.Severity
	}
	if len(src.Description) > len(dst.Description) {
		dst.Description = src.Description
	}
	if len(src.Recommendation) > len(dst.Recommendation) {
		dst.Recommendation = src.Recommendation
	}
}

// coverageFor classifies a unit by surviving vs rostered roles.
func coverageFor(surviving, rostered int) CoverageStatus {
	switch {
	case surviving == 0:
		return CoverageSkipped
	case surviving == 1:
		return CoverageDegraded
	case surviving < rostered:
		return CoveragePartial
	default:
		return CoverageFull
	}
}

// sortTallies orders tallies by weighted score descending, then severity,
// then location, so output order is stable across runs.
func sortTallies(tallies []VoteTally) {
	sort.SliceStable(tallies, func(i, j int) bool {
		if tallies[i].WeightedScore != tallies[j].WeightedScore {
			return tallies[i].WeightedScore > tallies[j].WeightedScore
		}
		ri, rj := tallies[i].Finding.Severity.Rank(), tallies[j].Finding.Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		li, lj := tallies[i].Finding.Location, tallies[j].Finding.Location
		if li.Resource != lj.Resource {
			return li.Resource < lj.Resource
		}
		return li.Line < lj.Line
	})
}

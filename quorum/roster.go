package quorum

// Role is a fixed reviewer perspective assigned a vote weight.
//
// Every work unit is analyzed by the three baseline roles. Oversized units
// additionally receive the complexity role, which carries the highest weight
// because it only runs where extra scrutiny is warranted.
type Role string

// The worker roles.
const (
	RoleQuality        Role = "quality"
	RoleImplementation Role = "implementation"
	RoleDesign         Role = "design"
	RoleComplexity     Role = "complexity"
)

// WorkerAssignment pairs a work unit with a role and its vote weight.
// Assignments are static configuration: one roster per run, never mutated
// during execution.
type WorkerAssignment struct {
	// WorkUnitID is the unit this assignment targets.
	WorkUnitID string `json:"work_unit_id"`

	// Role is the worker perspective to invoke.
	Role Role `json:"role"`

	// VoteWeight is the role's fixed weight in consensus voting.
	VoteWeight float64 `json:"vote_weight"`

	// OversizedOnly marks assignments that apply only to oversized units.
	OversizedOnly bool `json:"applies_only_if_oversized"`
}

// Roster is the static per-run mapping from work units to worker assignments.
//
// The roster always includes the three baseline roles and appends the
// complexity role for oversized units. Consensus remains meaningful across
// 3-role and 4-role units because the aggregator normalizes by the total
// weight actually present for each unit.
type Roster struct {
	weights map[Role]float64
}

// defaultWeights are the fixed per-role vote weights.
var defaultWeights = map[Role]float64{
	RoleQuality:        1.0,
	RoleImplementation: 1.0,
	RoleDesign:         1.2,
	RoleComplexity:     1.5,
}

// NewRoster creates a roster with the default role weights.
func NewRoster() *Roster {
	w := make(map[Role]float64, len(defaultWeights))
	for role, weight := range defaultWeights {
		w[role] = weight
	}
	return &Roster{weights: w}
}

// NewRosterWithWeights creates a roster with custom role weights.
// All four roles must be present with positive weights; Validate reports
// violations.
func NewRosterWithWeights(weights map[Role]float64) *Roster {
	w := make(map[Role]float64, len(weights))
	for role, weight := range weights {
		w[role] = weight
	}
	return &Roster{weights: w}
}

// Weight returns the vote weight for a role (0 for unknown roles).
func (r *Roster) Weight(role Role) float64 {
	return r.weights[role]
}

// For returns the ordered worker assignments for a work unit: the three
// baseline roles, plus the complexity role when the unit is oversized.
func (r *Roster) For(unit WorkUnit) []WorkerAssignment {
	roles := []Role{RoleQuality, RoleImplementation, RoleDesign}
	if unit.Oversized {
		roles = append(roles, RoleComplexity)
	}

	assignments := make([]WorkerAssignment, 0, len(roles))
	for _, role := range roles {
		assignments = append(assignments, WorkerAssignment{
			WorkUnitID:    unit.ID,
			Role:          role,
			VoteWeight:    r.weights[role],
			OversizedOnly: role == RoleComplexity,
		})
	}
	return assignments
}

// Validate checks that the roster carries all four roles with positive
// weights. Returns a ConfigError describing the first violation.
func (r *Roster) Validate() error {
	for _, role := range []Role{RoleQuality, RoleImplementation, RoleDesign, RoleComplexity} {
		weight, ok := r.weights[role]
		if !ok {
			return &ConfigError{
				Message: "missing vote weight for role: " + string(role),
				Code:    "MISSING_WEIGHT",
			}
		}
		if weight <= 0 {
			return &ConfigError{
				Message: "vote weight must be positive for role: " + string(role),
				Code:    "INVALID_WEIGHT",
			}
		}
	}
	return nil
}

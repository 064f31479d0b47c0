package invoke

import (
	"fmt"
	"strings"

	"github.com/dshills/quorum-go/quorum"
)

// roleFocus describes what each reviewer perspective should concentrate on.
var roleFocus = map[quorum.Role]string{
	quorum.RoleQuality:        "correctness, error handling, edge cases, and test gaps",
	quorum.RoleImplementation: "resource management, concurrency safety, and performance",
	quorum.RoleDesign:         "interface boundaries, coupling, naming, and extensibility",
	quorum.RoleComplexity:     "decomposition of oversized components and accumulated complexity",
}

// BuildPayload renders the analysis prompt for one (work unit, role) pair.
// It is the production quorum.PayloadFunc.
//
// The prompt requests JSON-structured output matching the strict wire schema
// the decode cascade parses first:
//
//	{
//	  "health_score": 0.8,
//	  "findings": [
//	    {"severity": "high", "resource": "path", "line": 10,
//	     "description": "...", "recommendation": "..."}
//	  ],
//	  "mutations": [
//	    {"resource": "path", "expected_signal": "exists"}
//	  ]
//	}
func BuildPayload(unit quorum.WorkUnit, role quorum.Role) string {
	var sb strings.Builder

	sb.WriteString("You are an expert reviewer analyzing a slice of a larger corpus.\n")
	fmt.Fprintf(&sb, "Your perspective: %s. Focus on %s.\n\n", role, roleFocus[role])

	fmt.Fprintf(&sb, "Work unit %s (%s) covers these resources:\n", unit.ID, unit.Label)
	for _, pattern := range unit.ResourcePatterns {
		sb.WriteString("  - ")
		sb.WriteString(pattern)
		sb.WriteString("\n")
	}
	if unit.Oversized {
		sb.WriteString("\nThis unit is oversized relative to its peers; weight structural concerns accordingly.\n")
	}

	sb.WriteString("\nReturn ONLY a JSON object with this structure, no additional text:\n")
	sb.WriteString(`{
  "health_score": 0.8,
  "findings": [
    {
      "severity": "critical|high|medium|low|info",
      "resource": "path/to/resource",
      "line": 10,
      "description": "what is wrong",
      "recommendation": "how to fix it"
    }
  ],
  "mutations": []
}
`)
	sb.WriteString("\nhealth_score is your overall assessment between 0.0 and 1.0.\n")
	sb.WriteString("Use line 0 for resource-level findings. If nothing is wrong, return an empty findings array.\n")

	return sb.String()
}

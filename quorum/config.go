package quorum

import (
	"fmt"
	"time"
)

// RunConfig configures a coordinator run.
//
// Zero values are valid - withDefaults fills in sensible defaults, so callers
// only set the knobs they care about:
//
//	cfg := quorum.RunConfig{ConcurrencyLimit: 16}
//	coord := quorum.NewCoordinator(invoker, checker, cfg)
type RunConfig struct {
	// ConcurrencyLimit caps concurrent worker invocations across all work
	// units. Default 100.
	ConcurrencyLimit int

	// InvocationTimeout is the hard per-invocation deadline. Default 60s.
	InvocationTimeout time.Duration

	// RetryBackoff is the fixed delay before the single retry of a timed-out
	// or transiently failed invocation. Default 5s.
	RetryBackoff time.Duration

	// VerifyRetries is the maximum number of re-applications of a mutation
	// claim after the first mismatch. Default 2 (3 total attempts).
	VerifyRetries int

	// VerifyDelay is the fixed delay between verification attempts.
	// Default 2s.
	VerifyDelay time.Duration

	// MinCoveragePct is the overall coverage fraction below which the final
	// report carries the INCOMPLETE_ANALYSIS warning. Default 0.70.
	MinCoveragePct float64

	// SeverityThresholds maps each severity to the minimum consensus fraction
	// required for acceptance. Critical effectively requires unanimity
	// regardless of the configured value. Defaults: critical 1.0, high 0.60,
	// medium 0.60, low 0.50, info 0.40.
	SeverityThresholds map[Severity]float64

	// SimilarityThreshold is the minimum normalized Levenshtein similarity
	// for two finding descriptions to count as overlapping. Default 0.70.
	SimilarityThreshold float64

	// LineProximity is the maximum line distance for two findings on the same
	// resource to be considered co-located. Default 5.
	LineProximity int

	// OversizeFactor flags a work unit as oversized when its estimated size
	// exceeds this multiple of the median unit size. Default 3.0.
	OversizeFactor float64

	// MaxUnits is the number of work units the partitioner targets.
	// Default 12.
	MaxUnits int
}

// defaultSeverityThresholds relax monotonically with decreasing severity.
var defaultSeverityThresholds = map[Severity]float64{
	SeverityCritical: 1.0,
	SeverityHigh:     0.60,
	SeverityMedium:   0.60,
	SeverityLow:      0.50,
	SeverityInfo:     0.40,
}

// DefaultRunConfig returns a RunConfig with every field set to its default.
func DefaultRunConfig() RunConfig {
	return RunConfig{}.withDefaults()
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// defaults. Threshold maps are copied, never shared.
func (cfg RunConfig) withDefaults() RunConfig {
	if cfg.ConcurrencyLimit == 0 {
		cfg.ConcurrencyLimit = 100
	}
	if cfg.InvocationTimeout == 0 {
		cfg.InvocationTimeout = 60 * time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	if cfg.VerifyRetries == 0 {
		cfg.VerifyRetries = 2
	}
	if cfg.VerifyDelay == 0 {
		cfg.VerifyDelay = 2 * time.Second
	}
	if cfg.MinCoveragePct == 0 {
		cfg.MinCoveragePct = 0.70
	}
	if cfg.SeverityThresholds == nil {
		thresholds := make(map[Severity]float64, len(defaultSeverityThresholds))
		for sev, pct := range defaultSeverityThresholds {
			thresholds[sev] = pct
		}
		cfg.SeverityThresholds = thresholds
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.70
	}
	if cfg.LineProximity == 0 {
		cfg.LineProximity = 5
	}
	if cfg.OversizeFactor == 0 {
		cfg.OversizeFactor = 3.0
	}
	if cfg.MaxUnits == 0 {
		cfg.MaxUnits = 12
	}
	return cfg
}

// Validate checks cfg for out-of-range values. Call after withDefaults.
func (cfg RunConfig) Validate() error {
	if cfg.ConcurrencyLimit < 1 {
		return &ConfigError{Message: "concurrency limit must be at least 1", Code: "INVALID_CONCURRENCY"}
	}
	if cfg.InvocationTimeout <= 0 {
		return &ConfigError{Message: "invocation timeout must be positive", Code: "INVALID_TIMEOUT"}
	}
	if cfg.VerifyRetries < 0 {
		return &ConfigError{Message: "verify retries cannot be negative", Code: "INVALID_RETRIES"}
	}
	if cfg.MinCoveragePct < 0 || cfg.MinCoveragePct > 1 {
		return &ConfigError{Message: "minimum coverage must be in [0,1]", Code: "INVALID_COVERAGE"}
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return &ConfigError{Message: "similarity threshold must be in [0,1]", Code: "INVALID_SIMILARITY"}
	}
	if cfg.OversizeFactor <= 1 {
		return &ConfigError{Message: "oversize factor must exceed 1", Code: "INVALID_OVERSIZE"}
	}
	if cfg.MaxUnits < 1 {
		return &ConfigError{Message: "max units must be at least 1", Code: "INVALID_MAX_UNITS"}
	}
	for sev, pct := range cfg.SeverityThresholds {
		if !sev.Valid() {
			return &ConfigError{Message: "unknown severity in thresholds: " + string(sev), Code: "INVALID_SEVERITY"}
		}
		if pct < 0 || pct > 1 {
			return &ConfigError{
				Message: fmt.Sprintf("threshold for %s must be in [0,1], got %v", sev, pct),
				Code:    "INVALID_THRESHOLD",
			}
		}
	}
	return nil
}

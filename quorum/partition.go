package quorum

import (
	"fmt"
	"path"
	"sort"
)

// Resource is one analyzable item in the target corpus, typically a file.
type Resource struct {
	// Path identifies the resource within the corpus.
	Path string `json:"path"`

	// EstimatedSize is a relative size estimate (lines, bytes, whatever the
	// caller uses consistently). Non-positive estimates are floored to 1.
	EstimatedSize int `json:"estimated_size"`
}

// WorkUnit is an independently analyzable shard of the corpus.
//
// Units are created once by Partition before dispatch and are immutable
// thereafter. Oversized units receive the extra complexity role.
type WorkUnit struct {
	// ID uniquely identifies the unit within a run ("U1", "U2", ...).
	ID string `json:"id"`

	// Label is a human-readable name, derived from the common path prefix of
	// the unit's resources.
	Label string `json:"label"`

	// ResourcePatterns lists the resource paths covered by this unit, in
	// corpus order.
	ResourcePatterns []string `json:"resource_patterns"`

	// EstimatedSize is the sum of the unit's resource size estimates.
	// Always positive.
	EstimatedSize int `json:"estimated_size"`

	// Oversized marks units whose size exceeds the configured multiple of
	// the median unit size. Oversized units get a fourth reviewer.
	Oversized bool `json:"is_oversized"`
}

// Partition splits the corpus into at most cfg.MaxUnits work units that cover
// every resource with no overlap.
//
// Resources are sorted by path and packed greedily so related paths land in
// the same unit. After packing, a unit is flagged oversized when its size
// exceeds cfg.OversizeFactor times the median unit size.
//
// Returns a ConfigError when the corpus is empty. Runs once, synchronously,
// before dispatch.
func Partition(corpus []Resource, cfg RunConfig) ([]WorkUnit, error) {
	cfg = cfg.withDefaults()

	if len(corpus) == 0 {
		return nil, &ConfigError{Message: "corpus is empty", Code: "EMPTY_CORPUS"}
	}

	resources := make([]Resource, len(corpus))
	copy(resources, corpus)
	for i := range resources {
		if resources[i].EstimatedSize < 1 {
			resources[i].EstimatedSize = 1
		}
	}
	sort.Slice(resources, func(i, j int) bool {
		return resources[i].Path < resources[j].Path
	})

	total := 0
	for _, r := range resources {
		total += r.EstimatedSize
	}

	// Greedy packing toward an even size per unit. Ceiling division keeps
	// the unit count at or under MaxUnits.
	target := (total + cfg.MaxUnits - 1) / cfg.MaxUnits
	if target < 1 {
		target = 1
	}

	var units []WorkUnit
	var current []Resource
	currentSize := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		patterns := make([]string, len(current))
		for i, r := range current {
			patterns[i] = r.Path
		}
		units = append(units, WorkUnit{
			ID:               fmt.Sprintf("U%d", len(units)+1),
			Label:            commonLabel(patterns),
			ResourcePatterns: patterns,
			EstimatedSize:    currentSize,
		})
		current = nil
		currentSize = 0
	}

	for _, r := range resources {
		// A single huge resource still becomes its own unit rather than
		// splitting; oversize flagging handles it below.
		if currentSize > 0 && currentSize+r.EstimatedSize > target && len(units) < cfg.MaxUnits-1 {
			flush()
		}
		current = append(current, r)
		currentSize += r.EstimatedSize
	}
	flush()

	flagOversized(units, cfg.OversizeFactor)
	return units, nil
}

// flagOversized marks units whose size exceeds factor times the median size.
func flagOversized(units []WorkUnit, factor float64) {
	if len(units) == 0 {
		return
	}
	sizes := make([]int, len(units))
	for i, u := range units {
		sizes[i] = u.EstimatedSize
	}
	sort.Ints(sizes)

	var median float64
	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		median = float64(sizes[mid])
	} else {
		median = float64(sizes[mid-1]+sizes[mid]) / 2
	}

	for i := range units {
		if float64(units[i].EstimatedSize) > factor*median {
			units[i].Oversized = true
		}
	}
}

// commonLabel derives a unit label from the longest shared directory prefix
// of its resource paths, falling back to the first path.
func commonLabel(patterns []string) string {
	if len(patterns) == 0 {
		return ""
	}
	prefix := path.Dir(patterns[0])
	for _, p := range patterns[1:] {
		dir := path.Dir(p)
		for prefix != "." && prefix != "/" && !hasPathPrefix(dir, prefix) {
			prefix = path.Dir(prefix)
		}
		if prefix == "." || prefix == "/" {
			break
		}
	}
	if prefix == "." || prefix == "/" || prefix == "" {
		return patterns[0]
	}
	return prefix
}

// hasPathPrefix reports whether dir equals prefix or sits below it.
func hasPathPrefix(dir, prefix string) bool {
	if dir == prefix {
		return true
	}
	if len(dir) > len(prefix) && dir[:len(prefix)] == prefix && dir[len(prefix)] == '/' {
		return true
	}
	return false
}

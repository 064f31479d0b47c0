package quorum

import (
	"errors"
	"fmt"
	"testing"
)

func TestPartition_CoversEveryResource(t *testing.T) {
	corpus := make([]Resource, 0, 40)
	for i := 0; i < 40; i++ {
		corpus = append(corpus, Resource{
			Path:          fmt.Sprintf("pkg%d/file%d.go", i%5, i),
			EstimatedSize: 100 + i,
		})
	}

	units, err := Partition(corpus, DefaultRunConfig())
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(units) == 0 {
		t.Fatal("expected at least one unit")
	}
	if len(units) > DefaultRunConfig().MaxUnits {
		t.Errorf("got %d units, want at most %d", len(units), DefaultRunConfig().MaxUnits)
	}

	seen := make(map[string]string)
	for _, unit := range units {
		for _, path := range unit.ResourcePatterns {
			if prev, dup := seen[path]; dup {
				t.Errorf("resource %s assigned to both %s and %s", path, prev, unit.ID)
			}
			seen[path] = unit.ID
		}
	}
	for _, r := range corpus {
		if _, ok := seen[r.Path]; !ok {
			t.Errorf("resource %s not covered by any unit", r.Path)
		}
	}
}

func TestPartition_UnitIDsAreSequential(t *testing.T) {
	corpus := []Resource{
		{Path: "a/one.go", EstimatedSize: 10},
		{Path: "b/two.go", EstimatedSize: 10},
		{Path: "c/three.go", EstimatedSize: 10},
	}

	units, err := Partition(corpus, DefaultRunConfig())
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	for i, unit := range units {
		want := fmt.Sprintf("U%d", i+1)
		if unit.ID != want {
			t.Errorf("unit %d ID = %q, want %q", i, unit.ID, want)
		}
	}
}

func TestPartition_EmptyCorpus(t *testing.T) {
	_, err := Partition(nil, DefaultRunConfig())
	if err == nil {
		t.Fatal("expected error for empty corpus")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if cfgErr.Code != "EMPTY_CORPUS" {
		t.Errorf("code = %q, want EMPTY_CORPUS", cfgErr.Code)
	}
}

func TestPartition_OversizedFlag(t *testing.T) {
	// One huge resource forces its unit far past the median multiple.
	corpus := []Resource{
		{Path: "a/small1.go", EstimatedSize: 10},
		{Path: "b/small2.go", EstimatedSize: 10},
		{Path: "c/small3.go", EstimatedSize: 10},
		{Path: "d/small4.go", EstimatedSize: 10},
		{Path: "e/huge.go", EstimatedSize: 100000},
	}
	cfg := DefaultRunConfig()
	cfg.MaxUnits = 5

	units, err := Partition(corpus, cfg)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	oversized := 0
	for _, unit := range units {
		if unit.Oversized {
			oversized++
			found := false
			for _, p := range unit.ResourcePatterns {
				if p == "e/huge.go" {
					found = true
				}
			}
			if !found {
				t.Errorf("oversized unit %s does not contain the huge resource", unit.ID)
			}
		}
	}
	if oversized != 1 {
		t.Errorf("got %d oversized units, want 1", oversized)
	}
}

func TestPartition_Deterministic(t *testing.T) {
	corpus := []Resource{
		{Path: "z/last.go", EstimatedSize: 30},
		{Path: "a/first.go", EstimatedSize: 20},
		{Path: "m/mid.go", EstimatedSize: 25},
	}

	first, err := Partition(corpus, DefaultRunConfig())
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	// Shuffled input must produce the same partition.
	shuffled := []Resource{corpus[2], corpus[0], corpus[1]}
	second, err := Partition(shuffled, DefaultRunConfig())
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("unit count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].EstimatedSize != second[i].EstimatedSize {
			t.Errorf("unit %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
		for j, p := range first[i].ResourcePatterns {
			if second[i].ResourcePatterns[j] != p {
				t.Errorf("unit %d resource %d differs: %s vs %s", i, j, p, second[i].ResourcePatterns[j])
			}
		}
	}
}

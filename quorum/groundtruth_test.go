package quorum

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSignalChecker(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "present.md"), []byte("## Summary\nall good\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	checker := &FileSignalChecker{Root: dir}
	ctx := context.Background()

	tests := []struct {
		name     string
		resource string
		signal   string
		want     bool
	}{
		{"exists on present file", "present.md", "exists", true},
		{"exists on missing file", "missing.md", "exists", false},
		{"absent on missing file", "missing.md", "absent", true},
		{"absent on present file", "present.md", "absent", false},
		{"contains matching pattern", "present.md", "contains:## Summary", true},
		{"contains regexp", "present.md", `contains:all\s+good`, true},
		{"contains non-matching pattern", "present.md", "contains:failure", false},
		{"contains on missing file", "missing.md", "contains:anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.Check(ctx, tt.resource, tt.signal)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Check(%s, %s) = %v, want %v", tt.resource, tt.signal, got, tt.want)
			}
		})
	}

	t.Run("unknown signal", func(t *testing.T) {
		if _, err := checker.Check(ctx, "present.md", "sparkles"); err == nil {
			t.Error("expected error for unknown signal")
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		if _, err := checker.Check(ctx, "present.md", "contains:([unclosed"); err == nil {
			t.Error("expected error for invalid regexp")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := checker.Check(cancelled, "present.md", "exists"); err == nil {
			t.Error("expected context error")
		}
	})
}

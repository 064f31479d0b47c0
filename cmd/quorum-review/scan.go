package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/quorum-go/quorum"
)

// corpusScanner discovers analyzable resources under a root directory.
type corpusScanner struct {
	// IncludePatterns are filepath.Match patterns; a file must match at
	// least one (empty means include everything).
	IncludePatterns []string

	// ExcludePatterns remove files and whole directories from the corpus.
	ExcludePatterns []string
}

// Discover walks the root and returns one Resource per matching file, with
// paths relative to the root and sizes taken from the filesystem.
func (s *corpusScanner) Discover(root string) ([]quorum.Resource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var corpus []quorum.Resource
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if info.IsDir() {
			if s.matchesExclude(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.matchesExclude(rel) || !s.matchesInclude(rel) {
			return nil
		}

		corpus = append(corpus, quorum.Resource{
			Path:          filepath.ToSlash(rel),
			EstimatedSize: int(info.Size()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return corpus, nil
}

func (s *corpusScanner) matchesInclude(path string) bool {
	if len(s.IncludePatterns) == 0 {
		return true
	}
	return matchesAny(s.IncludePatterns, path)
}

func (s *corpusScanner) matchesExclude(path string) bool {
	return matchesAny(s.ExcludePatterns, path)
}

func matchesAny(patterns []string, path string) bool {
	filename := filepath.Base(path)
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, filename); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

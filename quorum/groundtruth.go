package quorum

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileSignalChecker verifies mutation claims against the filesystem. The
// target resource is a path relative to Root; the expected signal is one of:
//
//	exists              the file is present
//	absent              the file is not present
//	contains:<pattern>  the file content matches the regular expression
type FileSignalChecker struct {
	// Root anchors relative target resources. Empty means the current
	// working directory.
	Root string
}

// Check re-reads the target from disk and reports whether the signal holds.
func (c *FileSignalChecker) Check(ctx context.Context, resource, signal string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path := resource
	if c.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(c.Root, path)
	}

	switch {
	case signal == "exists":
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		return err == nil, err

	case signal == "absent":
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err

	case strings.HasPrefix(signal, "contains:"):
		pattern := strings.TrimPrefix(signal, "contains:")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid signal pattern %q: %w", pattern, err)
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return re.Match(data), nil

	default:
		return false, fmt.Errorf("unknown signal %q", signal)
	}
}

package facade

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ntsdev/nts/pkg/core"
)

// sanitizePath resolves path against workingDir and guarantees the result
// does not escape it, per §4.1's "all paths must resolve inside the task's
// working directory". A relative path is joined to workingDir; an absolute
// path must already be inside it. workingDir == "" (the ephemeral "default"
// task with no working directory set) only requires path to be absolute.
func sanitizePath(workingDir, path string) (string, error) {
	if path == "" {
		return "", core.New(core.KindParamMissing, "path is required")
	}

	if workingDir == "" {
		if !filepath.IsAbs(path) {
			return "", core.New(core.KindParamInvalid, "path must be absolute when the task has no working directory")
		}

		return filepath.Clean(path), nil
	}

	workingDir = filepath.Clean(workingDir)

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workingDir, abs)
	}

	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(workingDir, abs)
	if err != nil {
		return "", fmt.Errorf("sanitize path %q: %w", path, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", core.Wrap(core.KindParamInvalid, fmt.Sprintf("path %q escapes working directory %q", path, workingDir), core.ErrOutsideWorkingDir)
	}

	return abs, nil
}

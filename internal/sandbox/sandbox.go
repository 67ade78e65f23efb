// Package sandbox is the single trust boundary for caller-supplied
// paths. Every component resolves paths through Resolve before any
// filesystem access; nothing else in the codebase may join a caller
// path onto the workspace root.
package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcpr-project/mcpr/internal/fault"
)

// Resolve turns userPath, interpreted relative to root, into a
// verified-contained absolute path. root must already be absolute and
// canonical (the session store guarantees this). It fails with a
// PathEscape fault when the path is absolute, traverses above root, or
// follows a symlink that lands outside root.
func Resolve(root, userPath string) (string, error) {
	if userPath == "" {
		return "", fault.New(fault.PathEscape, "empty path")
	}
	if filepath.IsAbs(userPath) {
		return "", fault.New(fault.PathEscape, "absolute paths are not allowed: %s", userPath)
	}

	joined := filepath.Join(root, userPath)
	if !contained(root, joined) {
		return "", fault.New(fault.PathEscape, "path escapes workspace: %s", userPath)
	}

	// The lexical check above is not enough: a symlink inside root may
	// point anywhere. Resolve the deepest existing ancestor and
	// re-check containment on the physical path.
	resolved, err := resolveExisting(joined)
	if err != nil {
		return "", fault.New(fault.PathEscape, "cannot resolve %s: %v", userPath, err)
	}
	if !contained(root, resolved) {
		return "", fault.New(fault.PathEscape, "path resolves outside workspace: %s", userPath)
	}

	return joined, nil
}

// contained reports whether path is root itself or a descendant of it.
func contained(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolveExisting evaluates symlinks on the longest existing prefix of
// path and re-joins the non-existing remainder, so containment can be
// checked even for paths that are about to be created.
func resolveExisting(path string) (string, error) {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}

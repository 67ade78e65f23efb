package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcpr-project/mcpr/internal/fault"
)

func canonicalTempDir(t *testing.T) string {
	t.Helper()
	// t.TempDir may sit behind a symlink (macOS /var -> /private/var).
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func TestResolveContainedPaths(t *testing.T) {
	root := canonicalTempDir(t)

	tests := []struct {
		name string
		path string
	}{
		{"simple file", "analysis.R"},
		{"nested file", "scripts/model.R"},
		{"dot segments that stay inside", "scripts/../analysis.R"},
		{"not yet existing", "out/results.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(root, tt.path)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.path, err)
			}
			if !strings.HasPrefix(got, root+string(filepath.Separator)) {
				t.Errorf("Resolved path %q is not a descendant of root %q", got, root)
			}
		})
	}
}

func TestResolveEscapes(t *testing.T) {
	root := canonicalTempDir(t)

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"absolute", "/etc/passwd"},
		{"plain traversal", "../outside.R"},
		{"nested traversal", "a/../../outside.R"},
		{"bare dotdot", ".."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(root, tt.path); !fault.Is(err, fault.PathEscape) {
				t.Errorf("Resolve(%q) = %v, want PathEscape fault", tt.path, err)
			}
		})
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	root := canonicalTempDir(t)
	outside := canonicalTempDir(t)

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := Resolve(root, "link/secret.txt"); !fault.Is(err, fault.PathEscape) {
		t.Errorf("Expected PathEscape for symlink target outside root, got %v", err)
	}
	if _, err := Resolve(root, "link"); !fault.Is(err, fault.PathEscape) {
		t.Errorf("Expected PathEscape for the symlink itself, got %v", err)
	}
}

func TestResolveSymlinkInsideRoot(t *testing.T) {
	root := canonicalTempDir(t)

	target := filepath.Join(root, "data")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "alias")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := Resolve(root, "alias/table.csv"); err != nil {
		t.Errorf("Symlink staying inside root should resolve, got %v", err)
	}
}

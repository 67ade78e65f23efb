// Package scripts manages the R source files of a workspace: creation,
// writes, appends, renames, and listing. Every operation resolves its
// path arguments through the sandbox before touching storage, and a
// resolution failure on any endpoint aborts the whole operation.
package scripts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mcpr-project/mcpr/internal/fault"
	"github.com/mcpr-project/mcpr/internal/sandbox"
	"github.com/mcpr-project/mcpr/internal/workspace"
)

// Scaffold is the header written into freshly created scripts.
const Scaffold = `# mcpr: R script
# Purpose: Add your analysis functions, data prep, and execution blocks here.
# Notes:
# - Keep functions small, documented, and testable.
# - Use explicit library() calls in the "Packages" section.
# - Write outputs (CSV/RDS/plots) into the working directory.

# ---- Packages ----
# library(readr)
# library(dplyr)

# ---- Functions ----

# ---- Main ----
`

// ScriptFile describes one managed source file.
type ScriptFile struct {
	RelativePath string    `json:"relative_path"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
	IsPrimary    bool      `json:"is_primary"`
}

// NormalizeName appends an .R extension when the name has neither .r
// nor .R, matching how callers typically refer to scripts.
func NormalizeName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".r") {
		return name
	}
	return name + ".R"
}

// Create writes a new script file. It fails with AlreadyExists when the
// resolved path exists; the registry never silently overwrites. An
// empty template writes the default scaffold. Returns the normalized
// relative path.
func Create(s *workspace.Session, relativePath, template string) (string, error) {
	rel := NormalizeName(relativePath)
	abs, err := sandbox.Resolve(s.Root(), rel)
	if err != nil {
		return "", err
	}

	if _, statErr := os.Stat(abs); statErr == nil {
		return "", fault.New(fault.AlreadyExists, "file %s already exists", rel).
			WithHints("Choose a different filename", "Use write_r_code with overwrite=true to replace it")
	}

	content := template
	if content == "" {
		content = Scaffold
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("creating %s: %w", rel, err)
	}
	return rel, nil
}

// Write replaces the full content of a script. When the target exists
// and overwrite is false it fails with OverwriteProtection and leaves
// the file untouched; destructive writes require explicit opt-in every
// time. Returns the normalized relative path and bytes written.
func Write(s *workspace.Session, relativePath, content string, overwrite bool) (string, int, error) {
	rel := NormalizeName(relativePath)
	abs, err := sandbox.Resolve(s.Root(), rel)
	if err != nil {
		return "", 0, err
	}

	if _, statErr := os.Stat(abs); statErr == nil && !overwrite {
		return "", 0, fault.New(fault.OverwriteProtection, "file %s already exists", rel).
			WithHints("Set overwrite=true to replace it", "Use append_r_code to add to the existing file")
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", 0, fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", 0, fmt.Errorf("writing %s: %w", rel, err)
	}
	return rel, len(content), nil
}

// Append adds content to an existing script, separated from the
// existing text by a newline. Fails with UnknownFile when the target
// is not tracked.
func Append(s *workspace.Session, relativePath, content string) (string, int, error) {
	rel := NormalizeName(relativePath)
	abs, err := sandbox.Resolve(s.Root(), rel)
	if err != nil {
		return "", 0, err
	}

	existing, readErr := os.ReadFile(abs)
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return "", 0, fault.New(fault.UnknownFile, "file %s does not exist", rel).
				WithHints("Create the file first with create_r_file")
		}
		return "", 0, fmt.Errorf("reading %s: %w", rel, readErr)
	}

	chunk := content
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		chunk = "\n" + chunk
	}
	if !strings.HasSuffix(chunk, "\n") {
		chunk += "\n"
	}

	f, err := os.OpenFile(abs, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", rel, err)
	}
	defer f.Close()

	n, err := f.WriteString(chunk)
	if err != nil {
		return "", 0, fmt.Errorf("appending to %s: %w", rel, err)
	}
	return rel, n, nil
}

// Rename moves a script. Both endpoints resolve through the sandbox
// before anything changes; from must exist and to must not. When the
// renamed file was the primary script, the designation follows it.
func Rename(s *workspace.Session, from, to string) (string, string, bool, error) {
	fromRel := NormalizeName(from)
	toRel := NormalizeName(to)

	fromAbs, err := sandbox.Resolve(s.Root(), fromRel)
	if err != nil {
		return "", "", false, err
	}
	toAbs, err := sandbox.Resolve(s.Root(), toRel)
	if err != nil {
		return "", "", false, err
	}

	if _, statErr := os.Stat(fromAbs); statErr != nil {
		return "", "", false, fault.New(fault.UnknownFile, "file %s does not exist", fromRel)
	}
	if _, statErr := os.Stat(toAbs); statErr == nil {
		return "", "", false, fault.New(fault.AlreadyExists, "file %s already exists", toRel).
			WithHints("Choose a different target name")
	}

	if err := os.MkdirAll(filepath.Dir(toAbs), 0o755); err != nil {
		return "", "", false, fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.Rename(fromAbs, toAbs); err != nil {
		return "", "", false, fmt.Errorf("renaming %s to %s: %w", fromRel, toRel, err)
	}

	moved, err := s.ReplacePrimary(fromRel, toRel)
	if err != nil {
		return fromRel, toRel, moved, err
	}
	return fromRel, toRel, moved, nil
}

// List returns all managed scripts under the workspace root, ordered
// by relative path. The reserved state directory and hidden entries
// are skipped.
func List(s *workspace.Session) ([]ScriptFile, error) {
	primary := s.PrimaryFile()
	root := s.Root()

	var files []ScriptFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".r") || strings.HasPrefix(name, ".") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		files = append(files, ScriptFile{
			RelativePath: rel,
			SizeBytes:    info.Size(),
			LastModified: info.ModTime(),
			IsPrimary:    rel == primary,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing scripts: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})
	return files, nil
}

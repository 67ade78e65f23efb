package rexec

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mcpr-project/mcpr/internal/fault"
	"github.com/mcpr-project/mcpr/internal/workspace"
)

// probeScript enumerates the bindings of the saved workspace image.
// Its output is a constrained, internally-defined line format the
// engine controls: one "name<TAB>description" line per binding. Only
// that format is parsed; no general R-value parsing is attempted.
const probeScript = `load(".mcpr/` + SessionImageName + `", .GlobalEnv); ` +
	`for(n in ls(.GlobalEnv)){` +
	`v = get(n, envir=.GlobalEnv); ` +
	`cat(n, "\t", paste(class(v), collapse="/"), " length=", length(v), "\n", sep="")` +
	`}`

// InspectObjects enumerates the live bindings of the last saved R
// session as a name-to-description mapping. It fails with NoSession
// when no script run has saved a workspace image yet.
func (e *Engine) InspectObjects(ctx context.Context, s *workspace.Session, timeout time.Duration) (map[string]string, *Result, error) {
	imagePath := filepath.Join(s.StateDir(), SessionImageName)
	if _, err := os.Stat(imagePath); err != nil {
		return nil, nil, fault.New(fault.NoSession, "no saved R session found").
			WithHints("Run an R script with run_r_script first")
	}

	result, err := e.Execute(ctx, s, Request{
		Expression: probeScript,
		Timeout:    timeout,
		Op:         "inspect_r_objects",
	})
	if err != nil {
		return nil, nil, err
	}
	if result.TimedOut {
		return nil, result, fault.New(fault.ExecError, "object inspection timed out")
	}
	if result.ExitCode != nil && *result.ExitCode != 0 {
		return nil, result, fault.New(fault.ExecError, "object inspection probe failed: %s",
			strings.TrimSpace(result.Stderr))
	}

	return parseProbeOutput(result.Stdout), result, nil
}

// parseProbeOutput reads the probe's tab-separated line format. Lines
// that do not match are ignored rather than guessed at.
func parseProbeOutput(stdout string) map[string]string {
	objects := make(map[string]string)
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		name, desc, ok := strings.Cut(line, "\t")
		if !ok || name == "" {
			continue
		}
		objects[name] = strings.TrimSpace(desc)
	}
	return objects
}

// SortedObjectNames returns the binding names in stable order for
// deterministic rendering.
func SortedObjectNames(objects map[string]string) []string {
	names := make([]string, 0, len(objects))
	for name := range objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

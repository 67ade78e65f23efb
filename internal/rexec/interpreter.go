// Package rexec invokes the external R interpreter: binary discovery,
// serialized script execution with bounded capture and wall-clock
// timeouts, and the object-inspection probe.
package rexec

import (
	"os"
	"os/exec"
	"sync"

	"github.com/mcpr-project/mcpr/internal/fault"
)

// Interpreter describes the resolved R executable.
type Interpreter struct {
	Path         string   `json:"executable"`
	Alternatives []string `json:"alternatives"`
}

// Well-known install locations probed after PATH. Rscript is preferred
// over the interactive R binary.
var probeCandidates = []string{
	"/usr/local/bin/Rscript",
	"/usr/lib/R/bin/Rscript",
	"/opt/homebrew/bin/Rscript",
	"/Library/Frameworks/R.framework/Resources/bin/Rscript",
}

var (
	findOnce   sync.Once
	findResult Interpreter
	findErr    error
)

// Find locates the R interpreter. The probe runs once per process and
// is cached; absence is reported as a fault, never a crash.
func Find() (Interpreter, error) {
	findOnce.Do(func() {
		findResult, findErr = probe()
	})
	return findResult, findErr
}

func probe() (Interpreter, error) {
	var alternatives []string

	for _, name := range []string{"Rscript", "R"} {
		if path, err := exec.LookPath(name); err == nil {
			alternatives = append(alternatives, path)
		}
	}
	for _, candidate := range probeCandidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			alternatives = appendUnique(alternatives, candidate)
		}
	}

	if len(alternatives) == 0 {
		return Interpreter{}, fault.New(fault.InterpreterNotFound,
			"Rscript not found in PATH or well-known locations").
			WithHints("Install R from https://www.r-project.org/", "Ensure Rscript is in your system PATH")
	}
	return Interpreter{Path: alternatives[0], Alternatives: alternatives}, nil
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

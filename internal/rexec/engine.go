package rexec

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcpr-project/mcpr/internal/config"
	"github.com/mcpr-project/mcpr/internal/fault"
	"github.com/mcpr-project/mcpr/internal/sandbox"
	"github.com/mcpr-project/mcpr/internal/workspace"
)

// SessionImageName is the workspace image written after script runs
// and loaded by the object-inspection probe.
const SessionImageName = "last_session.RData"

// TruncationMarker is appended to captured streams cut at the ceiling.
const TruncationMarker = "\n...[output truncated]"

// Status is the terminal state of one execution.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Request describes one execution. Exactly one of ScriptPath and
// Expression must be set.
type Request struct {
	ScriptPath string
	Expression string
	Args       []string
	Timeout    time.Duration
	// SaveImage wraps a script run so the R workspace image is saved
	// for later inspection. Ignored for expressions.
	SaveImage bool
	// Op overrides the history operation name; defaults to
	// run_r_script / run_r_expression.
	Op string
}

// Result is the immutable outcome of one execution. ExitCode is nil
// when the process was killed on timeout. A script exiting non-zero is
// a completed execution, not an engine fault.
type Result struct {
	Status          Status    `json:"status"`
	ExitCode        *int      `json:"exit_code"`
	Stdout          string    `json:"stdout"`
	Stderr          string    `json:"stderr"`
	StdoutTruncated bool      `json:"stdout_truncated,omitempty"`
	StderrTruncated bool      `json:"stderr_truncated,omitempty"`
	DurationMillis  int64     `json:"duration_ms"`
	TimedOut        bool      `json:"timed_out"`
	StartedAt       time.Time `json:"started_at"`
	// HistoryWarning is set when the history append could not be
	// persisted; the execution itself still succeeded.
	HistoryWarning string `json:"-"`
}

// Engine runs R subprocesses, one at a time per workspace.
type Engine struct {
	limits      config.Limits
	interpreter func() (Interpreter, error)
	logger      *slog.Logger
}

// NewEngine creates an engine using the process-wide interpreter probe.
func NewEngine(limits config.Limits, logger *slog.Logger) *Engine {
	return NewEngineWithInterpreter(limits, Find, logger)
}

// NewEngineWithInterpreter creates an engine with an injectable
// interpreter resolver, used by tests to substitute a fake binary.
func NewEngineWithInterpreter(limits config.Limits, resolve func() (Interpreter, error), logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{limits: limits, interpreter: resolve, logger: logger}
}

// Execute runs one request under the workspace execution lock. The
// lock is held from spawn through teardown and released on every exit
// path; the result is appended to session history before returning.
func (e *Engine) Execute(ctx context.Context, s *workspace.Session, req Request) (*Result, error) {
	argv, op, err := e.buildArgv(s, req)
	if err != nil {
		return nil, err
	}
	if req.Op != "" {
		op = req.Op
	}

	interp, err := e.interpreter()
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.limits.DefaultTimeout
	}

	release, err := s.AcquireExec(ctx, e.limits.LockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := e.run(ctx, s.Root(), interp.Path, argv, timeout)
	if err != nil {
		if herr := s.AppendHistory(op, "failed: "+err.Error()); herr != nil {
			e.logger.Warn("history append failed", "op", op, "error", herr)
		}
		return nil, err
	}

	if herr := s.AppendHistory(op, result.summary()); herr != nil {
		result.HistoryWarning = fmt.Sprintf("history persistence failed: %v", herr)
	}
	return result, nil
}

// buildArgv turns the request into a discrete argument vector. Caller
// input is never interpolated into a shell command line; the script
// path inside the save-image wrapper is the only quoted value and it
// has already passed sandbox resolution.
func (e *Engine) buildArgv(s *workspace.Session, req Request) ([]string, string, error) {
	switch {
	case req.ScriptPath != "" && req.Expression != "":
		return nil, "", fault.New(fault.ExecError, "request sets both script path and expression")
	case req.Expression != "":
		return append([]string{"-e", req.Expression}, req.Args...), "run_r_expression", nil
	case req.ScriptPath != "":
		abs, err := sandbox.Resolve(s.Root(), req.ScriptPath)
		if err != nil {
			return nil, "", err
		}
		rel, err := filepath.Rel(s.Root(), abs)
		if err != nil {
			return nil, "", fmt.Errorf("relativizing script path: %w", err)
		}
		if req.SaveImage {
			wrapper := fmt.Sprintf(`source(%q); save.image(%q)`,
				filepath.ToSlash(rel),
				workspace.StateDirName+"/"+SessionImageName,
			)
			return append([]string{"-e", wrapper}, req.Args...), "run_r_script", nil
		}
		return append([]string{abs}, req.Args...), "run_r_script", nil
	default:
		return nil, "", fault.New(fault.ExecError, "request sets neither script path nor expression")
	}
}

// run spawns the interpreter and enforces the wall-clock timeout. On
// expiry the whole process group is killed before the function
// returns, so no children survive the execution.
func (e *Engine) run(ctx context.Context, dir, interpreter string, argv []string, timeout time.Duration) (*Result, error) {
	stdout := newCapBuffer(e.limits.MaxOutputBytes)
	stderr := newCapBuffer(e.limits.MaxOutputBytes)

	cmd := exec.Command(interpreter, argv...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fault.New(fault.ExecError, "failed to start %s: %v", interpreter, err)
	}

	e.logger.Debug("execution started",
		"workdir", dir,
		"interpreter", interpreter,
		"args", strings.Join(argv, " "),
		"timeout", timeout,
	)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var timedOut bool
	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-timer.C:
		timedOut = true
		killProcessGroup(cmd)
		<-waitDone
	case <-ctx.Done():
		timedOut = true
		killProcessGroup(cmd)
		<-waitDone
	}

	result := &Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		DurationMillis:  time.Since(started).Milliseconds(),
		StartedAt:       started,
	}

	switch {
	case timedOut:
		result.Status = StatusTimedOut
		result.TimedOut = true
	case waitErr == nil:
		result.Status = StatusCompleted
		code := 0
		result.ExitCode = &code
	default:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			// The script raised an error: a normal outcome with a
			// non-zero exit, not an engine fault.
			code := exitErr.ExitCode()
			result.Status = StatusCompleted
			result.ExitCode = &code
		} else {
			result.Status = StatusFailed
			return nil, fault.New(fault.ExecError, "execution failed: %v", waitErr)
		}
	}

	e.logger.Debug("execution finished",
		"workdir", dir,
		"status", result.Status,
		"duration_ms", result.DurationMillis,
	)
	return result, nil
}

func (r *Result) summary() string {
	switch {
	case r.TimedOut:
		return fmt.Sprintf("timed out after %dms", r.DurationMillis)
	case r.ExitCode != nil:
		return fmt.Sprintf("exit %d in %dms", *r.ExitCode, r.DurationMillis)
	default:
		return fmt.Sprintf("%s in %dms", r.Status, r.DurationMillis)
	}
}

// capBuffer captures a stream up to a fixed ceiling. Writes past the
// ceiling are counted but dropped, and String appends an explicit
// truncation marker instead of silently cutting.
type capBuffer struct {
	max       int
	data      []byte
	truncated bool
}

func newCapBuffer(max int) *capBuffer {
	return &capBuffer{max: max}
}

func (b *capBuffer) Write(p []byte) (int, error) {
	room := b.max - len(b.data)
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.data = append(b.data, p[:room]...)
		b.truncated = true
	} else {
		b.data = append(b.data, p...)
	}
	return len(p), nil
}

func (b *capBuffer) Truncated() bool {
	return b.truncated
}

func (b *capBuffer) String() string {
	if b.truncated {
		return string(b.data) + TruncationMarker
	}
	return string(b.data)
}

package workspace

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mcpr-project/mcpr/internal/fault"
	"github.com/mcpr-project/mcpr/internal/sandbox"
)

// StateDirName is the reserved subdirectory holding persisted session
// state and the last R session image.
const StateDirName = ".mcpr"

// HistoryEntry records one executed operation for auditing.
type HistoryEntry struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Op      string    `json:"op"`
	Summary string    `json:"summary"`
}

// Session is the live, in-memory representation of one workspace. The
// store owns exactly one Session per canonical root. Metadata fields
// are guarded by the session's own mutex; the execution semaphore is a
// separate, heavier lock held for whole subprocess lifetimes so that
// metadata updates never block on a running script.
type Session struct {
	root string

	mu          sync.Mutex
	primaryFile string
	history     []HistoryEntry
	createdAt   time.Time
	lastTouched time.Time

	exec   *semaphore.Weighted
	logger *slog.Logger
}

// Snapshot is a read-only copy of session metadata for get_state.
type Snapshot struct {
	Root              string         `json:"workdir"`
	PrimaryFile       string         `json:"primary_file"`
	PrimaryFileExists bool           `json:"primary_file_exists"`
	CreatedAt         time.Time      `json:"created_at"`
	LastTouched       time.Time      `json:"last_touched_at"`
	HistoryLength     int            `json:"history_length"`
	RecentHistory     []HistoryEntry `json:"recent_history"`
}

const snapshotHistoryTail = 20

// Root returns the canonical absolute workspace root.
func (s *Session) Root() string {
	return s.root
}

// StateDir returns the absolute path of the reserved state directory.
func (s *Session) StateDir() string {
	return s.root + string(os.PathSeparator) + StateDirName
}

// PrimaryFile returns the relative path of the primary script, or ""
// when none is set.
func (s *Session) PrimaryFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primaryFile
}

// SetPrimary designates relativePath as the primary script. The path
// must resolve inside the workspace and reference an existing file.
func (s *Session) SetPrimary(relativePath string) error {
	abs, err := sandbox.Resolve(s.root, relativePath)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return fault.New(fault.UnknownFile, "file %s does not exist", relativePath).
			WithHints("Create the file first with create_r_file")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.primaryFile = relativePath
	s.lastTouched = time.Now()
	return s.persistLocked()
}

// ReplacePrimary swaps the primary designation from one relative path
// to another as part of a rename. It is a no-op when from is not the
// current primary.
func (s *Session) ReplacePrimary(from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primaryFile != from {
		return false, nil
	}
	s.primaryFile = to
	s.lastTouched = time.Now()
	return true, s.persistLocked()
}

// AppendHistory records an executed operation. The append always
// succeeds in memory; a persistence failure is logged and returned so
// the caller can surface it as a non-fatal warning.
func (s *Session) AppendHistory(op, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, HistoryEntry{
		ID:      uuid.NewString(),
		At:      time.Now(),
		Op:      op,
		Summary: summary,
	})
	s.lastTouched = time.Now()

	if err := s.persistLocked(); err != nil {
		s.logger.Warn("history persistence failed",
			"workdir", s.root,
			"op", op,
			"error", err,
		)
		return err
	}
	return nil
}

// Snapshot copies the session metadata for reporting.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Root:          s.root,
		PrimaryFile:   s.primaryFile,
		CreatedAt:     s.createdAt,
		LastTouched:   s.lastTouched,
		HistoryLength: len(s.history),
	}
	if s.primaryFile != "" {
		if abs, err := sandbox.Resolve(s.root, s.primaryFile); err == nil {
			if info, serr := os.Stat(abs); serr == nil && !info.IsDir() {
				snap.PrimaryFileExists = true
			}
		}
	}
	tail := len(s.history) - snapshotHistoryTail
	if tail < 0 {
		tail = 0
	}
	snap.RecentHistory = append(snap.RecentHistory, s.history[tail:]...)
	return snap
}

// HistoryLength returns the number of recorded operations.
func (s *Session) HistoryLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// AcquireExec takes the workspace execution lock, waiting at most
// wait. Waiters are served in arrival order. On expiry it fails with a
// Busy fault instead of queueing indefinitely. The returned release
// function must be called on every exit path.
func (s *Session) AcquireExec(ctx context.Context, wait time.Duration) (func(), error) {
	acquireCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := s.exec.Acquire(acquireCtx, 1); err != nil {
		return nil, fault.New(fault.Busy, "another execution is running in %s", s.root).
			WithHints("Retry after the current execution finishes")
	}
	return func() { s.exec.Release(1) }, nil
}

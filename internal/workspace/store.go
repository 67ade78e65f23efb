// Package workspace owns workspace sessions: the durable record of a
// configured root directory, its primary script, and its operation
// history. The store is an explicit, injectable registry keyed by
// canonical root so tests can run many independent workspaces in one
// process.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mcpr-project/mcpr/internal/fault"
)

const (
	stateFileName = "state.json"
	stateVersion  = 1
)

// stateRecord is the on-disk shape of .mcpr/state.json. Unknown fields
// are ignored on load so newer versions can extend it.
type stateRecord struct {
	Version     int            `json:"version"`
	Workdir     string         `json:"workdir"`
	PrimaryFile string         `json:"primary_file"`
	CreatedAt   time.Time      `json:"created_at"`
	History     []HistoryEntry `json:"history"`
}

// Store is the registry of live sessions, one per canonical root.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Open returns the live session for root, creating the directory (when
// create is true) and loading persisted state as needed. Calling Open
// again on the same canonical root returns the same session object.
func (st *Store) Open(root string, create bool) (*Session, error) {
	canonical, err := canonicalizeRoot(root, create)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[canonical]; ok {
		return s, nil
	}

	stateDir := filepath.Join(canonical, StateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fault.New(fault.DirectoryCreate, "cannot create state directory %s: %v", stateDir, err)
	}

	s := &Session{
		root:   canonical,
		exec:   semaphore.NewWeighted(1),
		logger: st.logger,
	}

	statePath := filepath.Join(stateDir, stateFileName)
	data, readErr := os.ReadFile(statePath)
	switch {
	case readErr == nil:
		var record stateRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fault.New(fault.CorruptState, "state file %s is unreadable: %v", statePath, err).
				WithHints("Inspect or remove the .mcpr directory to reset the workspace")
		}
		s.primaryFile = record.PrimaryFile
		s.history = record.History
		s.createdAt = record.CreatedAt
		if s.createdAt.IsZero() {
			s.createdAt = time.Now()
		}
	case errors.Is(readErr, os.ErrNotExist):
		s.createdAt = time.Now()
	default:
		return nil, fault.New(fault.CorruptState, "state file %s is unreadable: %v", statePath, readErr)
	}
	s.lastTouched = time.Now()

	// Persist immediately so a fresh workspace survives a restart.
	s.mu.Lock()
	persistErr := s.persistLocked()
	s.mu.Unlock()
	if persistErr != nil {
		return nil, fmt.Errorf("initial state persist: %w", persistErr)
	}

	st.sessions[canonical] = s
	st.logger.Info("workspace opened", "workdir", canonical, "primary_file", s.primaryFile)
	return s, nil
}

// Get returns the live session for a previously opened root.
func (st *Store) Get(root string) (*Session, error) {
	canonical, err := canonicalizeRoot(root, false)
	if err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[canonical]
	if !ok {
		return nil, fault.New(fault.NotConfigured, "working directory not set").
			WithHints("Call set_workdir with a directory path")
	}
	return s, nil
}

// persistLocked writes the state record atomically. Callers hold s.mu.
func (s *Session) persistLocked() error {
	record := stateRecord{
		Version:     stateVersion,
		Workdir:     s.root,
		PrimaryFile: s.primaryFile,
		CreatedAt:   s.createdAt,
		History:     s.history,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	statePath := filepath.Join(s.root, StateDirName, stateFileName)
	tmpPath := statePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmpPath, statePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing state: %w", err)
	}
	return nil
}

// canonicalizeRoot makes root absolute, optionally creates it, and
// resolves symlinks so two spellings of the same directory share one
// session.
func canonicalizeRoot(root string, create bool) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fault.New(fault.DirectoryCreate, "invalid directory %s: %v", root, err)
	}

	info, statErr := os.Stat(abs)
	switch {
	case statErr == nil:
		if !info.IsDir() {
			return "", fault.New(fault.DirectoryCreate, "%s is not a directory", abs)
		}
	case errors.Is(statErr, os.ErrNotExist):
		if !create {
			return "", fault.New(fault.DirectoryCreate, "directory %s does not exist", abs).
				WithHints("Set create=true to create it", "Provide an existing directory path")
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", fault.New(fault.DirectoryCreate, "cannot create directory %s: %v", abs, err)
		}
	default:
		return "", fault.New(fault.DirectoryCreate, "cannot access directory %s: %v", abs, statErr)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fault.New(fault.DirectoryCreate, "cannot canonicalize %s: %v", abs, err)
	}
	return canonical, nil
}

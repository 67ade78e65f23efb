// Package config holds the tunable service limits. Every constant the
// core depends on (output ceilings, timeouts, lock waits) lives here so
// tests and deployments can vary them instead of relying on hard-coded
// values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultMaxOutputBytes bounds each captured stream (stdout and
	// stderr separately) before truncation.
	DefaultMaxOutputBytes = 1 << 20
	// DefaultMaxReadBytes bounds read_export payloads.
	DefaultMaxReadBytes = 2_000_000

	DefaultLockWait    = 5 * time.Second
	DefaultTimeout     = 120 * time.Second
	DefaultMaxTimeout  = 3600 * time.Second
	DefaultPreviewRows = 20
)

// Limits carries the runtime bounds for execution and inspection.
type Limits struct {
	// MaxOutputBytes is the per-stream capture ceiling for subprocess
	// output. Past it the stream is truncated with an explicit marker.
	MaxOutputBytes int `yaml:"max_output_bytes"`
	// MaxReadBytes is the read_export size ceiling; larger files fail
	// with TOO_LARGE instead of being buffered.
	MaxReadBytes int64 `yaml:"max_read_bytes"`
	// LockWait bounds how long an execution request waits for the
	// per-workspace lock before failing BUSY.
	LockWait time.Duration `yaml:"lock_wait"`
	// DefaultTimeout applies when a request omits timeout_seconds.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// MaxTimeout clamps caller-supplied timeouts.
	MaxTimeout time.Duration `yaml:"max_timeout"`
	// PreviewRows is the default row cap for preview_table.
	PreviewRows int `yaml:"preview_rows"`
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxOutputBytes: DefaultMaxOutputBytes,
		MaxReadBytes:   DefaultMaxReadBytes,
		LockWait:       DefaultLockWait,
		DefaultTimeout: DefaultTimeout,
		MaxTimeout:     DefaultMaxTimeout,
		PreviewRows:    DefaultPreviewRows,
	}
}

// Load reads limits from a YAML file, filling unset fields with
// defaults. An empty path returns the defaults unchanged.
func Load(path string) (Limits, error) {
	limits := DefaultLimits()
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return limits, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return limits, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return limits.normalized(), nil
}

// normalized backfills zero or negative values with defaults so a
// sparse config file cannot disable a bound entirely.
func (l Limits) normalized() Limits {
	def := DefaultLimits()
	if l.MaxOutputBytes <= 0 {
		l.MaxOutputBytes = def.MaxOutputBytes
	}
	if l.MaxReadBytes <= 0 {
		l.MaxReadBytes = def.MaxReadBytes
	}
	if l.LockWait <= 0 {
		l.LockWait = def.LockWait
	}
	if l.DefaultTimeout <= 0 {
		l.DefaultTimeout = def.DefaultTimeout
	}
	if l.MaxTimeout <= 0 {
		l.MaxTimeout = def.MaxTimeout
	}
	if l.PreviewRows <= 0 {
		l.PreviewRows = def.PreviewRows
	}
	return l
}

// ClampTimeout converts a caller-supplied timeout in seconds into a
// duration within [1s, MaxTimeout], applying the default when the
// caller passed nothing.
func (l Limits) ClampTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return l.DefaultTimeout
	}
	d := time.Duration(seconds) * time.Second
	if d > l.MaxTimeout {
		return l.MaxTimeout
	}
	return d
}

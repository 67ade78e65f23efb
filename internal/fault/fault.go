// Package fault defines the error taxonomy shared by every mcpr
// component. Each fault is a recoverable, reportable condition: it is
// returned to the MCP client as a structured error object and never
// crashes the server process.
package fault

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a fault category. The string values are the wire
// codes returned to clients.
type Kind string

const (
	PathEscape          Kind = "UNSAFE_PATH"
	NotConfigured       Kind = "NO_WORKDIR"
	DirectoryCreate     Kind = "DIR_CREATE_ERROR"
	UnknownFile         Kind = "FILE_NOT_FOUND"
	AlreadyExists       Kind = "FILE_EXISTS"
	OverwriteProtection Kind = "OVERWRITE_PROTECTED"
	InterpreterNotFound Kind = "R_NOT_FOUND"
	Busy                Kind = "BUSY"
	TooLarge            Kind = "TOO_LARGE"
	PreviewParse        Kind = "PREVIEW_PARSE_ERROR"
	CorruptState        Kind = "CORRUPT_STATE"
	NoPrimaryFile       Kind = "NO_PRIMARY_FILE"
	NoSession           Kind = "NO_SESSION"
	ExecError           Kind = "EXEC_ERROR"
)

// Error is a typed fault with an optional list of actionable hints.
type Error struct {
	Kind    Kind     `json:"code"`
	Message string   `json:"message"`
	Hints   []string `json:"hints,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates a fault of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithHints attaches actionable hints and returns the same fault.
func (e *Error) WithHints(hints ...string) *Error {
	e.Hints = append(e.Hints, hints...)
	return e
}

// KindOf returns the kind of err if it is (or wraps) a fault, and
// ExecError otherwise so callers always have a reportable code.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ExecError
}

// Is reports whether err is a fault of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

// AsError converts any error into a fault, passing through faults
// unchanged and wrapping everything else as ExecError.
func AsError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: ExecError, Message: err.Error()}
}

// Envelope renders the {"ok": false, "error": {...}} reply body used
// by every tool on failure.
func Envelope(err error) string {
	body := struct {
		OK    bool   `json:"ok"`
		Error *Error `json:"error"`
	}{OK: false, Error: AsError(err)}
	data, merr := json.Marshal(body)
	if merr != nil {
		return fmt.Sprintf(`{"ok":false,"error":{"code":"EXEC_ERROR","message":%q}}`, err.Error())
	}
	return string(data)
}

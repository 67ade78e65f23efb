package fault

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOfWrappedFault(t *testing.T) {
	inner := New(PathEscape, "path %q escapes workspace", "../x")
	wrapped := fmt.Errorf("resolving: %w", inner)

	if got := KindOf(wrapped); got != PathEscape {
		t.Errorf("Expected kind %s, got %s", PathEscape, got)
	}
	if !Is(wrapped, PathEscape) {
		t.Error("Expected Is to match wrapped fault")
	}
	if Is(wrapped, Busy) {
		t.Error("Is matched the wrong kind")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != ExecError {
		t.Errorf("Expected ExecError for plain error, got %s", got)
	}
}

func TestEnvelopeShape(t *testing.T) {
	err := New(OverwriteProtection, "file exists").WithHints("set overwrite=true")
	env := Envelope(err)

	var decoded struct {
		OK    bool `json:"ok"`
		Error struct {
			Code    string   `json:"code"`
			Message string   `json:"message"`
			Hints   []string `json:"hints"`
		} `json:"error"`
	}
	if uerr := json.Unmarshal([]byte(env), &decoded); uerr != nil {
		t.Fatalf("Envelope is not valid JSON: %v", uerr)
	}
	if decoded.OK {
		t.Error("Expected ok=false")
	}
	if decoded.Error.Code != string(OverwriteProtection) {
		t.Errorf("Expected code %s, got %s", OverwriteProtection, decoded.Error.Code)
	}
	if len(decoded.Error.Hints) != 1 || !strings.Contains(decoded.Error.Hints[0], "overwrite") {
		t.Errorf("Expected hint to survive, got %v", decoded.Error.Hints)
	}
}

func TestEnvelopePlainError(t *testing.T) {
	env := Envelope(errors.New("spawn failed"))
	if !strings.Contains(env, string(ExecError)) {
		t.Errorf("Expected plain errors to map to EXEC_ERROR, got %s", env)
	}
}

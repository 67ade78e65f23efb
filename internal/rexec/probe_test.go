package rexec

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpr-project/mcpr/internal/config"
	"github.com/mcpr-project/mcpr/internal/fault"
)

func TestInspectObjectsNoSession(t *testing.T) {
	engine, s := testEngine(t, config.DefaultLimits())

	_, _, err := engine.InspectObjects(context.Background(), s, time.Minute)
	if !fault.Is(err, fault.NoSession) {
		t.Errorf("Expected NoSession fault before any script run, got %v", err)
	}
}

func TestInspectObjectsParsesBindings(t *testing.T) {
	engine, s := testEngine(t, config.DefaultLimits())

	// A previous run would have saved the workspace image.
	imagePath := filepath.Join(s.StateDir(), SessionImageName)
	if err := os.WriteFile(imagePath, []byte("fake image"), 0o644); err != nil {
		t.Fatal(err)
	}

	objects, result, err := engine.InspectObjects(context.Background(), s, time.Minute)
	if err != nil {
		t.Fatalf("InspectObjects failed: %v", err)
	}
	if result == nil || result.Status != StatusCompleted {
		t.Fatalf("Expected completed probe execution, got %+v", result)
	}
	if len(objects) != 2 {
		t.Fatalf("Expected 2 bindings, got %v", objects)
	}
	if objects["fit"] != "lm length=12" {
		t.Errorf("Unexpected description for fit: %q", objects["fit"])
	}
	if objects["x"] != "numeric length=100" {
		t.Errorf("Unexpected description for x: %q", objects["x"])
	}
}

func TestParseProbeOutput(t *testing.T) {
	stdout := "fit\tlm length=12\n\nnoise without tab\nx\tnumeric length=3\r\n"
	objects := parseProbeOutput(stdout)

	if len(objects) != 2 {
		t.Fatalf("Expected 2 parsed bindings, got %v", objects)
	}
	if objects["x"] != "numeric length=3" {
		t.Errorf("Carriage return not stripped: %q", objects["x"])
	}

	names := SortedObjectNames(objects)
	if len(names) != 2 || names[0] != "fit" || names[1] != "x" {
		t.Errorf("Expected sorted names [fit x], got %v", names)
	}
}

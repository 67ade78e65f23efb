package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpr-project/mcpr/internal/config"
	"github.com/mcpr-project/mcpr/internal/fault"
	"github.com/mcpr-project/mcpr/internal/rexec"
	"github.com/mcpr-project/mcpr/internal/workspace"
)

// envelope mirrors the JSON reply body of every tool.
type envelope struct {
	OK      bool           `json:"ok"`
	Data    map[string]any `json:"data"`
	Warning string         `json:"warning"`
	Error   struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Hints   []string `json:"hints"`
	} `json:"error"`
}

// writeFakeInterpreter mimics Rscript closely enough for the façade:
// "-e" expressions are evaluated by the shell, the save-image wrapper
// runs the sourced script, and the inspection probe answers with a
// canned binding listing.
func writeFakeInterpreter(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-rscript")
	script := `#!/bin/sh
if [ "$1" = "-e" ]; then
  expr="$2"
  shift 2
  case "$expr" in
    load*)
      printf 'fit\tlm length=12\n'
      exit 0
      ;;
    source*)
      f=$(printf '%s' "$expr" | sed 's/^source("\([^"]*\)").*/\1/')
      touch .mcpr/last_session.RData
      /bin/sh "$f" "$@"
      ;;
    *)
      eval "$expr"
      ;;
  esac
else
  f="$1"
  shift
  /bin/sh "$f" "$@"
fi
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	interp := writeFakeInterpreter(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	limits := config.DefaultLimits()
	store := workspace.NewStore(logger)
	engine := rexec.NewEngineWithInterpreter(limits, func() (rexec.Interpreter, error) {
		return rexec.Interpreter{Path: interp, Alternatives: []string{interp}}, nil
	}, logger)
	return NewMCPServer(Config{Name: "mcpr-test", Version: "0.0.0"}, limits, store, engine, logger)
}

type handlerFunc func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, handler handlerFunc, name string, args map[string]any) envelope {
	t.Helper()
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := handler(context.Background(), request)
	if err != nil {
		t.Fatalf("Handler %s returned transport error: %v", name, err)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Handler %s returned non-text content", name)
	}
	var env envelope
	if uerr := json.Unmarshal([]byte(text.Text), &env); uerr != nil {
		t.Fatalf("Handler %s returned invalid JSON %q: %v", name, text.Text, uerr)
	}
	return env
}

func setWorkdir(t *testing.T, ms *MCPServer) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "ws")
	env := call(t, ms.handleSetWorkdir, toolSetWorkdir, map[string]any{"path": root})
	if !env.OK {
		t.Fatalf("set_workdir failed: %+v", env.Error)
	}
	return env.Data["workdir"].(string)
}

func TestSetWorkdirScaffoldsPrimary(t *testing.T) {
	ms := newTestServer(t)
	root := setWorkdir(t, ms)

	if _, err := os.Stat(filepath.Join(root, "agent.R")); err != nil {
		t.Errorf("Expected scaffold agent.R: %v", err)
	}

	env := call(t, ms.handleGetState, toolGetState, nil)
	if !env.OK {
		t.Fatalf("get_state failed: %+v", env.Error)
	}
	if env.Data["configured"] != true {
		t.Error("Expected configured=true after set_workdir")
	}
	state := env.Data["state"].(map[string]any)
	if state["primary_file"] != "agent.R" {
		t.Errorf("Expected primary agent.R, got %v", state["primary_file"])
	}
}

func TestToolsRequireWorkdir(t *testing.T) {
	ms := newTestServer(t)

	env := call(t, ms.handleCreateRFile, toolCreateRFile, map[string]any{"relative_path": "a.R"})
	if env.OK || env.Error.Code != string(fault.NotConfigured) {
		t.Errorf("Expected NO_WORKDIR error, got %+v", env)
	}

	env = call(t, ms.handleGetState, toolGetState, nil)
	if !env.OK || env.Data["configured"] != false {
		t.Errorf("get_state must succeed unconfigured, got %+v", env)
	}
}

func TestWriteOverwriteProtectionEnvelope(t *testing.T) {
	ms := newTestServer(t)
	setWorkdir(t, ms)

	env := call(t, ms.handleWriteRCode, toolWriteRCode, map[string]any{
		"relative_path": "model.R",
		"content":       "x = 1\n",
	})
	if !env.OK {
		t.Fatalf("First write failed: %+v", env.Error)
	}

	env = call(t, ms.handleWriteRCode, toolWriteRCode, map[string]any{
		"relative_path": "model.R",
		"content":       "y = 2\n",
	})
	if env.OK || env.Error.Code != string(fault.OverwriteProtection) {
		t.Errorf("Expected OVERWRITE_PROTECTED, got %+v", env)
	}
	if len(env.Error.Hints) == 0 {
		t.Error("Expected actionable hints on overwrite protection")
	}

	env = call(t, ms.handleWriteRCode, toolWriteRCode, map[string]any{
		"relative_path": "model.R",
		"content":       "y = 2\n",
		"overwrite":     true,
	})
	if !env.OK {
		t.Errorf("Overwrite with opt-in failed: %+v", env.Error)
	}
}

func TestPathEscapeEnvelope(t *testing.T) {
	ms := newTestServer(t)
	setWorkdir(t, ms)

	env := call(t, ms.handleCreateRFile, toolCreateRFile, map[string]any{
		"relative_path": "../evil.R",
	})
	if env.OK || env.Error.Code != string(fault.PathEscape) {
		t.Errorf("Expected UNSAFE_PATH, got %+v", env)
	}
}

func TestRunRScriptReportsChangedFiles(t *testing.T) {
	ms := newTestServer(t)
	setWorkdir(t, ms)

	env := call(t, ms.handleWriteRCode, toolWriteRCode, map[string]any{
		"relative_path": "job.R",
		"content":       "echo hello\necho 'a,b' > result.csv\n",
	})
	if !env.OK {
		t.Fatalf("write failed: %+v", env.Error)
	}

	env = call(t, ms.handleRunRScript, toolRunRScript, map[string]any{
		"relative_path": "job.R",
	})
	if !env.OK {
		t.Fatalf("run_r_script failed: %+v", env.Error)
	}
	result := env.Data["result"].(map[string]any)
	if result["exit_code"].(float64) != 0 {
		t.Errorf("Expected exit 0, got %v", result["exit_code"])
	}
	changed, _ := env.Data["new_or_modified_files"].([]any)
	found := false
	for _, name := range changed {
		if name == "result.csv" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected result.csv in new_or_modified_files, got %v", changed)
	}
}

func TestRunRScriptDefaultsToPrimary(t *testing.T) {
	ms := newTestServer(t)
	root := setWorkdir(t, ms)

	// The scaffold is all comments; replace it with something runnable.
	if err := os.WriteFile(filepath.Join(root, "agent.R"), []byte("echo primary-ran\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env := call(t, ms.handleRunRScript, toolRunRScript, nil)
	if !env.OK {
		t.Fatalf("run_r_script without target failed: %+v", env.Error)
	}
	result := env.Data["result"].(map[string]any)
	if stdout := result["stdout"].(string); stdout == "" {
		t.Error("Expected primary script output")
	}
}

func TestRunRScriptNoPrimary(t *testing.T) {
	ms := newTestServer(t)
	// A workspace opened directly has no primary.
	s, err := ms.store.Open(filepath.Join(t.TempDir(), "bare"), true)
	if err != nil {
		t.Fatal(err)
	}
	ms.setCurrent(s.Root())

	env := call(t, ms.handleRunRScript, toolRunRScript, nil)
	if env.OK || env.Error.Code != string(fault.NoPrimaryFile) {
		t.Errorf("Expected NO_PRIMARY_FILE, got %+v", env)
	}
}

func TestRenamePrimaryVisibleInState(t *testing.T) {
	ms := newTestServer(t)
	setWorkdir(t, ms)

	env := call(t, ms.handleRenameRFile, toolRenameRFile, map[string]any{
		"from": "agent.R",
		"to":   "analysis.R",
	})
	if !env.OK {
		t.Fatalf("rename failed: %+v", env.Error)
	}
	if env.Data["primary_updated"] != true {
		t.Error("Expected primary_updated=true")
	}

	env = call(t, ms.handleGetState, toolGetState, nil)
	state := env.Data["state"].(map[string]any)
	if state["primary_file"] != "analysis.R" {
		t.Errorf("Expected primary analysis.R after rename, got %v", state["primary_file"])
	}

	env = call(t, ms.handleListRFiles, toolListRFiles, nil)
	files := env.Data["files"].([]any)
	for _, f := range files {
		if f.(map[string]any)["relative_path"] == "agent.R" {
			t.Error("agent.R must no longer be listed after rename")
		}
	}
}

func TestInspectRObjectsFlow(t *testing.T) {
	ms := newTestServer(t)
	setWorkdir(t, ms)

	env := call(t, ms.handleInspectRObjects, toolInspectRObjects, nil)
	if env.OK || env.Error.Code != string(fault.NoSession) {
		t.Errorf("Expected NO_SESSION before any run, got %+v", env)
	}

	env = call(t, ms.handleWriteRCode, toolWriteRCode, map[string]any{
		"relative_path": "fit.R",
		"content":       "echo fitting\n",
	})
	if !env.OK {
		t.Fatal(env.Error)
	}
	env = call(t, ms.handleRunRScript, toolRunRScript, map[string]any{"relative_path": "fit.R"})
	if !env.OK {
		t.Fatalf("run failed: %+v", env.Error)
	}

	env = call(t, ms.handleInspectRObjects, toolInspectRObjects, nil)
	if !env.OK {
		t.Fatalf("inspect failed: %+v", env.Error)
	}
	objects := env.Data["objects"].(map[string]any)
	if objects["fit"] != "lm length=12" {
		t.Errorf("Expected canned binding, got %v", objects)
	}
}

func TestPreviewTableDefaults(t *testing.T) {
	ms := newTestServer(t)
	root := setWorkdir(t, ms)

	content := "a,b\n"
	for i := 0; i < 30; i++ {
		content += "1,2\n"
	}
	if err := os.WriteFile(filepath.Join(root, "wide.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	env := call(t, ms.handlePreviewTable, toolPreviewTable, map[string]any{
		"relative_path": "wide.csv",
	})
	if !env.OK {
		t.Fatalf("preview failed: %+v", env.Error)
	}
	rows := env.Data["rows"].([]any)
	if len(rows) != config.DefaultPreviewRows {
		t.Errorf("Expected default cap of %d rows, got %d", config.DefaultPreviewRows, len(rows))
	}
	if env.Data["truncated"] != true {
		t.Error("Expected truncated=true")
	}
}

func TestListExportsEnvelope(t *testing.T) {
	ms := newTestServer(t)
	root := setWorkdir(t, ms)
	if err := os.WriteFile(filepath.Join(root, "out.csv"), []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env := call(t, ms.handleListExports, toolListExports, nil)
	if !env.OK {
		t.Fatalf("list_exports failed: %+v", env.Error)
	}
	files := env.Data["files"].([]any)
	if len(files) == 0 {
		t.Fatal("Expected at least one export")
	}

	env = call(t, ms.handleReadExport, toolReadExport, map[string]any{"relative_path": "out.csv"})
	if !env.OK {
		t.Fatalf("read_export failed: %+v", env.Error)
	}
	if env.Data["text"] != "a,b\n1,2\n" {
		t.Errorf("Unexpected export text: %v", env.Data["text"])
	}
}

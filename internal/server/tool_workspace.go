package server

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpr-project/mcpr/internal/rexec"
	"github.com/mcpr-project/mcpr/internal/scripts"
)

// defaultPrimaryName is the scaffold script created for a fresh
// workspace that has no primary file yet.
const defaultPrimaryName = "agent.R"

// handleSetWorkdir implements the set_workdir tool.
func (ms *MCPServer) handleSetWorkdir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	create := request.GetBool("create", true)

	ms.audit.LogToolCall(ctx, toolSetWorkdir, path, map[string]any{"path": path, "create": create})

	existedBefore := false
	if abs, aerr := filepath.Abs(path); aerr == nil {
		if info, serr := os.Stat(abs); serr == nil && info.IsDir() {
			existedBefore = true
		}
	}

	session, err := ms.store.Open(path, create)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolSetWorkdir, err)
		return errResult(err), nil
	}

	// A fresh workspace gets the scaffold as its primary script.
	if session.PrimaryFile() == "" {
		if _, serr := os.Stat(filepath.Join(session.Root(), defaultPrimaryName)); serr != nil {
			if _, cerr := scripts.Create(session, defaultPrimaryName, ""); cerr != nil {
				ms.audit.LogToolResult(ctx, toolSetWorkdir, cerr)
				return errResult(cerr), nil
			}
		}
		if perr := session.SetPrimary(defaultPrimaryName); perr != nil {
			ms.audit.LogToolResult(ctx, toolSetWorkdir, perr)
			return errResult(perr), nil
		}
	}

	ms.setCurrent(session.Root())

	warning := ""
	if herr := session.AppendHistory(toolSetWorkdir, "workspace opened"); herr != nil {
		warning = "history persistence failed: " + herr.Error()
	}

	ms.audit.LogToolResult(ctx, toolSetWorkdir, nil)
	return okResult(map[string]any{
		"workdir":      session.Root(),
		"created":      !existedBefore,
		"primary_file": session.PrimaryFile(),
	}, warning), nil
}

// handleGetState implements the get_state tool. It never fails: an
// unconfigured server reports configured=false.
func (ms *MCPServer) handleGetState(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := ms.current()
	if err != nil {
		return okResult(map[string]any{"configured": false}, ""), nil
	}

	return okResult(map[string]any{
		"configured": true,
		"state":      session.Snapshot(),
	}, ""), nil
}

// handleWhichInterpreter implements the which_interpreter tool.
func (ms *MCPServer) handleWhichInterpreter(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	interp, err := rexec.Find()
	if err != nil {
		return errResult(err), nil
	}
	return okResult(interp, ""), nil
}

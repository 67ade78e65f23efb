package server

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpr-project/mcpr/internal/fault"
	"github.com/mcpr-project/mcpr/internal/rexec"
	"github.com/mcpr-project/mcpr/internal/scripts"
)

// handleRunRScript implements the run_r_script tool. With no explicit
// target it runs the primary file.
func (ms *MCPServer) handleRunRScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relativePath := request.GetString("relative_path", "")
	args := request.GetStringSlice("arguments", nil)
	timeoutSeconds := request.GetInt("timeout_seconds", 0)

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}

	if relativePath == "" {
		relativePath = session.PrimaryFile()
		if relativePath == "" {
			err := fault.New(fault.NoPrimaryFile, "no script given and no primary file set").
				WithHints("Pass relative_path", "Set a default with set_primary_file")
			ms.audit.LogToolResult(ctx, toolRunRScript, err)
			return errResult(err), nil
		}
	}
	relativePath = scripts.NormalizeName(relativePath)

	ms.audit.LogToolCall(ctx, toolRunRScript, session.Root(), map[string]any{
		"relative_path":   relativePath,
		"arguments":       args,
		"timeout_seconds": timeoutSeconds,
	})

	before := scanMtimes(session.Root())

	result, err := ms.engine.Execute(ctx, session, rexec.Request{
		ScriptPath: relativePath,
		Args:       args,
		Timeout:    ms.limits.ClampTimeout(timeoutSeconds),
		SaveImage:  true,
	})
	if err != nil {
		ms.audit.LogToolResult(ctx, toolRunRScript, err)
		return errResult(err), nil
	}

	ms.audit.LogToolResult(ctx, toolRunRScript, nil)
	return okResult(map[string]any{
		"file":                  relativePath,
		"result":                result,
		"new_or_modified_files": changedSince(before, scanMtimes(session.Root())),
	}, result.HistoryWarning), nil
}

// handleRunRExpression implements the run_r_expression tool.
func (ms *MCPServer) handleRunRExpression(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	timeoutSeconds := request.GetInt("timeout_seconds", 0)

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolRunRExpression, session.Root(), map[string]any{
		"timeout_seconds": timeoutSeconds,
	})

	result, err := ms.engine.Execute(ctx, session, rexec.Request{
		Expression: expression,
		Timeout:    ms.limits.ClampTimeout(timeoutSeconds),
	})
	if err != nil {
		ms.audit.LogToolResult(ctx, toolRunRExpression, err)
		return errResult(err), nil
	}

	ms.audit.LogToolResult(ctx, toolRunRExpression, nil)
	return okResult(map[string]any{"result": result}, result.HistoryWarning), nil
}

// handleInspectRObjects implements the inspect_r_objects tool.
func (ms *MCPServer) handleInspectRObjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolInspectRObjects, session.Root(), nil)

	objects, result, err := ms.engine.InspectObjects(ctx, session, ms.limits.DefaultTimeout)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolInspectRObjects, err)
		return errResult(err), nil
	}

	warning := ""
	if result != nil {
		warning = result.HistoryWarning
	}
	ms.audit.LogToolResult(ctx, toolInspectRObjects, nil)
	return okResult(map[string]any{
		"objects": objects,
		"names":   rexec.SortedObjectNames(objects),
	}, warning), nil
}

// scanMtimes records the modification times of the top-level files of
// the workspace, used to report what an execution produced.
func scanMtimes(root string) map[string]time.Time {
	mtimes := make(map[string]time.Time)
	entries, err := os.ReadDir(root)
	if err != nil {
		return mtimes
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name[0] == '.' {
			continue
		}
		if info, err := entry.Info(); err == nil {
			mtimes[name] = info.ModTime()
		}
	}
	return mtimes
}

func changedSince(before, after map[string]time.Time) []string {
	var changed []string
	for name, mtime := range after {
		if prev, ok := before[name]; !ok || mtime.After(prev) {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpr-project/mcpr/internal/scripts"
)

// handleCreateRFile implements the create_r_file tool.
func (ms *MCPServer) handleCreateRFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relativePath, err := request.RequireString("relative_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	template := request.GetString("template", "")

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolCreateRFile, session.Root(), map[string]any{"relative_path": relativePath})

	rel, err := scripts.Create(session, relativePath, template)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolCreateRFile, err)
		return errResult(err), nil
	}

	warning := historyWarning(session.AppendHistory(toolCreateRFile, "created "+rel))
	ms.audit.LogToolResult(ctx, toolCreateRFile, nil)
	return okResult(map[string]any{"file": rel}, warning), nil
}

// handleRenameRFile implements the rename_r_file tool.
func (ms *MCPServer) handleRenameRFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := request.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := request.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolRenameRFile, session.Root(), map[string]any{"from": from, "to": to})

	fromRel, toRel, primaryMoved, err := scripts.Rename(session, from, to)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolRenameRFile, err)
		return errResult(err), nil
	}

	warning := historyWarning(session.AppendHistory(toolRenameRFile,
		fmt.Sprintf("renamed %s to %s", fromRel, toRel)))
	ms.audit.LogToolResult(ctx, toolRenameRFile, nil)
	return okResult(map[string]any{
		"from":            fromRel,
		"to":              toRel,
		"primary_updated": primaryMoved,
	}, warning), nil
}

// handleWriteRCode implements the write_r_code tool.
func (ms *MCPServer) handleWriteRCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relativePath, err := request.RequireString("relative_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	overwrite := request.GetBool("overwrite", false)

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolWriteRCode, session.Root(),
		map[string]any{"relative_path": relativePath, "overwrite": overwrite})

	rel, written, err := scripts.Write(session, relativePath, content, overwrite)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolWriteRCode, err)
		return errResult(err), nil
	}

	warning := historyWarning(session.AppendHistory(toolWriteRCode,
		fmt.Sprintf("wrote %d bytes to %s", written, rel)))
	ms.audit.LogToolResult(ctx, toolWriteRCode, nil)
	return okResult(map[string]any{"file": rel, "bytes_written": written}, warning), nil
}

// handleAppendRCode implements the append_r_code tool.
func (ms *MCPServer) handleAppendRCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relativePath, err := request.RequireString("relative_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolAppendRCode, session.Root(), map[string]any{"relative_path": relativePath})

	rel, written, err := scripts.Append(session, relativePath, content)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolAppendRCode, err)
		return errResult(err), nil
	}

	warning := historyWarning(session.AppendHistory(toolAppendRCode,
		fmt.Sprintf("appended %d bytes to %s", written, rel)))
	ms.audit.LogToolResult(ctx, toolAppendRCode, nil)
	return okResult(map[string]any{"file": rel, "bytes_written": written}, warning), nil
}

// handleSetPrimaryFile implements the set_primary_file tool.
func (ms *MCPServer) handleSetPrimaryFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relativePath, err := request.RequireString("relative_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolSetPrimaryFile, session.Root(), map[string]any{"relative_path": relativePath})

	rel := scripts.NormalizeName(relativePath)
	if err := session.SetPrimary(rel); err != nil {
		ms.audit.LogToolResult(ctx, toolSetPrimaryFile, err)
		return errResult(err), nil
	}

	warning := historyWarning(session.AppendHistory(toolSetPrimaryFile, "primary set to "+rel))
	ms.audit.LogToolResult(ctx, toolSetPrimaryFile, nil)
	return okResult(map[string]any{"primary_file": rel}, warning), nil
}

// handleListRFiles implements the list_r_files tool.
func (ms *MCPServer) handleListRFiles(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}

	files, err := scripts.List(session)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolListRFiles, err)
		return errResult(err), nil
	}

	return okResult(map[string]any{
		"files":        files,
		"primary_file": session.PrimaryFile(),
	}, ""), nil
}

// historyWarning converts a best-effort history persistence failure
// into the warning string of a success payload.
func historyWarning(err error) string {
	if err == nil {
		return ""
	}
	return "history persistence failed: " + err.Error()
}

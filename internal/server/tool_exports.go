package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpr-project/mcpr/internal/exports"
)

// handleListExports implements the list_exports tool.
func (ms *MCPServer) handleListExports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subdirectory := request.GetString("subdirectory", "")

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolListExports, session.Root(), map[string]any{"subdirectory": subdirectory})

	entries, err := exports.List(session, subdirectory)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolListExports, err)
		return errResult(err), nil
	}

	ms.audit.LogToolResult(ctx, toolListExports, nil)
	return okResult(map[string]any{"files": entries}, ""), nil
}

// handleReadExport implements the read_export tool.
func (ms *MCPServer) handleReadExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relativePath, err := request.RequireString("relative_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolReadExport, session.Root(), map[string]any{"relative_path": relativePath})

	content, err := exports.Read(session, relativePath, ms.limits.MaxReadBytes)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolReadExport, err)
		return errResult(err), nil
	}

	ms.audit.LogToolResult(ctx, toolReadExport, nil)
	return okResult(content, ""), nil
}

// handlePreviewTable implements the preview_table tool.
func (ms *MCPServer) handlePreviewTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relativePath, err := request.RequireString("relative_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	maxRows := request.GetInt("max_rows", ms.limits.PreviewRows)
	if maxRows <= 0 {
		maxRows = ms.limits.PreviewRows
	}

	session, err := ms.current()
	if err != nil {
		return errResult(err), nil
	}
	ms.audit.LogToolCall(ctx, toolPreviewTable, session.Root(),
		map[string]any{"relative_path": relativePath, "max_rows": maxRows})

	preview, err := exports.Preview(session, relativePath, maxRows)
	if err != nil {
		ms.audit.LogToolResult(ctx, toolPreviewTable, err)
		return errResult(err), nil
	}

	ms.audit.LogToolResult(ctx, toolPreviewTable, nil)
	return okResult(preview, ""), nil
}

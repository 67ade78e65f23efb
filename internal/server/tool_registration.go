package server

import "github.com/mark3labs/mcp-go/mcp"

// Tool names exposed to the dispatch layer.
const (
	toolSetWorkdir       = "set_workdir"
	toolGetState         = "get_state"
	toolWhichInterpreter = "which_interpreter"
	toolCreateRFile      = "create_r_file"
	toolRenameRFile      = "rename_r_file"
	toolWriteRCode       = "write_r_code"
	toolAppendRCode      = "append_r_code"
	toolSetPrimaryFile   = "set_primary_file"
	toolListRFiles       = "list_r_files"
	toolRunRScript       = "run_r_script"
	toolRunRExpression   = "run_r_expression"
	toolInspectRObjects  = "inspect_r_objects"
	toolListExports      = "list_exports"
	toolReadExport       = "read_export"
	toolPreviewTable     = "preview_table"
)

// registerTools registers all MCP tools with their handlers.
func (ms *MCPServer) registerTools() {
	ms.server.AddTool(mcp.NewTool(toolSetWorkdir,
		mcp.WithDescription("Set the working directory for all R operations"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory to use as the workspace root"),
		),
		mcp.WithBoolean("create",
			mcp.Description("Create the directory if it does not exist (default true)"),
		),
	), ms.handleSetWorkdir)

	ms.server.AddTool(mcp.NewTool(toolGetState,
		mcp.WithDescription("Get current workspace state and configuration"),
	), ms.handleGetState)

	ms.server.AddTool(mcp.NewTool(toolWhichInterpreter,
		mcp.WithDescription("Report the resolved R interpreter executable"),
	), ms.handleWhichInterpreter)

	ms.server.AddTool(mcp.NewTool(toolCreateRFile,
		mcp.WithDescription("Create a new R script file"),
		mcp.WithString("relative_path",
			mcp.Required(),
			mcp.Description("Script path relative to the workspace root"),
		),
		mcp.WithString("template",
			mcp.Description("Initial content (defaults to the R scaffold)"),
		),
	), ms.handleCreateRFile)

	ms.server.AddTool(mcp.NewTool(toolRenameRFile,
		mcp.WithDescription("Rename an R script file"),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Current script path relative to the workspace root"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("New script path relative to the workspace root"),
		),
	), ms.handleRenameRFile)

	ms.server.AddTool(mcp.NewTool(toolWriteRCode,
		mcp.WithDescription("Write R code to a script file, replacing its content"),
		mcp.WithString("relative_path",
			mcp.Required(),
			mcp.Description("Script path relative to the workspace root"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Full script content"),
		),
		mcp.WithBoolean("overwrite",
			mcp.Description("Replace an existing file (default false)"),
		),
	), ms.handleWriteRCode)

	ms.server.AddTool(mcp.NewTool(toolAppendRCode,
		mcp.WithDescription("Append R code to an existing script file"),
		mcp.WithString("relative_path",
			mcp.Required(),
			mcp.Description("Script path relative to the workspace root"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Code to append"),
		),
	), ms.handleAppendRCode)

	ms.server.AddTool(mcp.NewTool(toolSetPrimaryFile,
		mcp.WithDescription("Designate the primary R script used by default"),
		mcp.WithString("relative_path",
			mcp.Required(),
			mcp.Description("Script path relative to the workspace root"),
		),
	), ms.handleSetPrimaryFile)

	ms.server.AddTool(mcp.NewTool(toolListRFiles,
		mcp.WithDescription("List all R script files in the workspace"),
	), ms.handleListRFiles)

	ms.server.AddTool(mcp.NewTool(toolRunRScript,
		mcp.WithDescription("Execute an R script file (defaults to the primary file)"),
		mcp.WithString("relative_path",
			mcp.Description("Script to run; omit to run the primary file"),
		),
		mcp.WithArray("arguments",
			mcp.Description("Command-line arguments passed to the script"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Wall-clock timeout in seconds"),
		),
	), ms.handleRunRScript)

	ms.server.AddTool(mcp.NewTool(toolRunRExpression,
		mcp.WithDescription("Execute a single R expression"),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("R expression to evaluate"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Wall-clock timeout in seconds"),
		),
	), ms.handleRunRExpression)

	ms.server.AddTool(mcp.NewTool(toolInspectRObjects,
		mcp.WithDescription("Enumerate R objects from the last script run"),
	), ms.handleInspectRObjects)

	ms.server.AddTool(mcp.NewTool(toolListExports,
		mcp.WithDescription("List output files in the workspace, most recent first"),
		mcp.WithString("subdirectory",
			mcp.Description("Subdirectory to list instead of the workspace root"),
		),
	), ms.handleListExports)

	ms.server.AddTool(mcp.NewTool(toolReadExport,
		mcp.WithDescription("Read an output file from the workspace"),
		mcp.WithString("relative_path",
			mcp.Required(),
			mcp.Description("File path relative to the workspace root"),
		),
	), ms.handleReadExport)

	ms.server.AddTool(mcp.NewTool(toolPreviewTable,
		mcp.WithDescription("Preview a CSV/TSV file as a bounded table"),
		mcp.WithString("relative_path",
			mcp.Required(),
			mcp.Description("File path relative to the workspace root"),
		),
		mcp.WithNumber("max_rows",
			mcp.Description("Maximum data rows to return (default 20)"),
		),
	), ms.handlePreviewTable)
}

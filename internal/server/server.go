// Package server is the MCP façade: it maps each tool to the sandbox,
// session store, script registry, execution engine, and export
// inspector, and normalizes results and faults into the JSON envelope
// the dispatch layer returns to clients.
package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mcpr-project/mcpr/internal/config"
	"github.com/mcpr-project/mcpr/internal/fault"
	"github.com/mcpr-project/mcpr/internal/rexec"
	"github.com/mcpr-project/mcpr/internal/workspace"
)

// Config holds identification for the MCP server.
type Config struct {
	Name    string
	Version string
}

// MCPServer wraps the mcp-go server with the mcpr business logic.
type MCPServer struct {
	server *server.MCPServer
	store  *workspace.Store
	engine *rexec.Engine
	limits config.Limits
	audit  *AuditLogger
	logger *slog.Logger

	// currentRoot is the workspace selected by set_workdir. Guarded by
	// mu; all other shared state lives in the store.
	mu          sync.Mutex
	currentRoot string
}

// NewMCPServer creates and configures the MCP server with all tools
// registered.
func NewMCPServer(cfg Config, limits config.Limits, store *workspace.Store, engine *rexec.Engine, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	ms := &MCPServer{
		server: mcpServer,
		store:  store,
		engine: engine,
		limits: limits,
		audit:  NewAuditLogger(logger),
		logger: logger,
	}
	ms.registerTools()
	return ms
}

// Serve starts the MCP server with stdio transport.
func (ms *MCPServer) Serve() error {
	return server.ServeStdio(ms.server)
}

// ServeHTTP starts the MCP server with HTTP/SSE transport on addr.
func (ms *MCPServer) ServeHTTP(addr string) error {
	sseServer := server.NewSSEServer(ms.server,
		server.WithBaseURL("http://"+addr),
		server.WithStaticBasePath("/mcp"),
	)
	return sseServer.Start(addr)
}

// current returns the session selected by set_workdir.
func (ms *MCPServer) current() (*workspace.Session, error) {
	ms.mu.Lock()
	root := ms.currentRoot
	ms.mu.Unlock()

	if root == "" {
		return nil, fault.New(fault.NotConfigured, "working directory not set").
			WithHints("Call set_workdir with a directory path")
	}
	return ms.store.Get(root)
}

func (ms *MCPServer) setCurrent(root string) {
	ms.mu.Lock()
	ms.currentRoot = root
	ms.mu.Unlock()
}

// okResult renders the {"ok": true, "data": ...} success envelope,
// with the optional non-fatal warning.
func okResult(data any, warning string) *mcp.CallToolResult {
	body := struct {
		OK      bool   `json:"ok"`
		Data    any    `json:"data"`
		Warning string `json:"warning,omitempty"`
	}{OK: true, Data: data, Warning: warning}

	encoded, err := json.Marshal(body)
	if err != nil {
		return mcp.NewToolResultError(fault.Envelope(err))
	}
	return mcp.NewToolResultText(string(encoded))
}

// errResult renders a fault as a structured MCP error result.
func errResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fault.Envelope(err))
}

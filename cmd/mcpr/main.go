package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpr-project/mcpr/internal/config"
	"github.com/mcpr-project/mcpr/internal/rexec"
	"github.com/mcpr-project/mcpr/internal/server"
	"github.com/mcpr-project/mcpr/internal/workspace"
)

const (
	serverName    = "mcpr"
	serverVersion = "0.2.0"
)

var (
	debug      bool
	httpMode   bool
	httpAddr   string
	configPath string
)

func main() {
	root := &cobra.Command{
		Use:          "mcpr",
		Short:        "MCP server for sandboxed R script execution",
		Long:         "mcpr exposes a workspace-scoped R scripting surface over the Model Context Protocol: script management, serialized execution, session inspection, and export preview.",
		Version:      serverVersion,
		RunE:         run,
		SilenceUsage: true,
	}

	root.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.Flags().BoolVar(&httpMode, "http", false, "Serve over HTTP/SSE instead of stdio")
	root.Flags().StringVar(&httpAddr, "http-addr", "localhost:8080", "Listen address for HTTP/SSE mode")
	root.Flags().StringVar(&configPath, "config", "", "Path to a YAML limits file (or set MCPR_CONFIG)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}

	// stdout carries the MCP stdio transport, so all logging goes to
	// stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if configPath == "" {
		configPath = os.Getenv("MCPR_CONFIG")
	}
	limits, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading limits: %w", err)
	}

	logger.Info("starting mcpr",
		"version", serverVersion,
		"debug", debug,
		"http_mode", httpMode,
		"config", configPath,
	)

	// A missing interpreter is not fatal at startup: the workspace and
	// script tools still work, and execution reports R_NOT_FOUND.
	if interp, ierr := rexec.Find(); ierr != nil {
		logger.Warn("no R interpreter found", "error", ierr)
	} else {
		logger.Info("R interpreter located", "path", interp.Path)
	}

	store := workspace.NewStore(logger)
	engine := rexec.NewEngine(limits, logger)

	mcpServer := server.NewMCPServer(server.Config{
		Name:    serverName,
		Version: serverVersion,
	}, limits, store, engine, logger)

	if httpMode {
		logger.Info("serving HTTP/SSE", "addr", httpAddr)
		return mcpServer.ServeHTTP(httpAddr)
	}

	logger.Info("serving stdio")
	return mcpServer.Serve()
}

package server

import (
	"context"
	"log/slog"

	"github.com/mcpr-project/mcpr/internal/fault"
)

// AuditLogger records every tool invocation and outcome through the
// structured logger, so a transcript of what the remote agent did to a
// workspace survives on stderr.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogToolCall logs a tool invocation with its arguments.
func (al *AuditLogger) LogToolCall(ctx context.Context, tool, workdir string, args map[string]any) {
	al.logger.InfoContext(ctx, "tool_call",
		"tool_name", tool,
		"workdir", workdir,
		"arguments", args,
	)
}

// LogToolResult logs the outcome of a tool invocation.
func (al *AuditLogger) LogToolResult(ctx context.Context, tool string, err error) {
	if err != nil {
		al.logger.ErrorContext(ctx, "tool_error",
			"tool_name", tool,
			"code", string(fault.KindOf(err)),
			"error", err.Error(),
		)
		return
	}
	al.logger.InfoContext(ctx, "tool_result",
		"tool_name", tool,
		"success", true,
	)
}

package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/parallaxdb/parallax/internal/core/port"
	"github.com/parallaxdb/parallax/internal/core/service"
)

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, pipeline *service.Pipeline, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, pipeline)

	return s
}

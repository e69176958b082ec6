package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/tablekeeper/internal/maintainer"
)

// Sessions resolves a target name to its Maintainer. service.Sessions
// satisfies it.
type Sessions interface {
	Targets() []string
	With(ctx context.Context, target string, fn func(*maintainer.Maintainer) error) error
}

// MCPServer wraps the mcp-go server with the table maintenance tools and
// resources. Agents can inspect features, read suggestions and plans, and,
// when allowed, start execute-mode runs.
type MCPServer struct {
	sessions Sessions
	allowRun bool
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and resources.
// The run tool is only registered when allowRun is set. The returned server
// is ready to serve over stdio or HTTP.
func NewMCPServer(sessions Sessions, allowRun bool, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		sessions: sessions,
		allowRun: allowRun,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"tablekeeper",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, the integration path for
// clients that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode", "allow_run", s.allowRun)
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001"). This is suitable for remote MCP clients.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr, "allow_run", s.allowRun)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

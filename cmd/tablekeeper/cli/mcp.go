package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tablekeeper/internal/maintainer"
	tkmcp "github.com/faucetdb/tablekeeper/internal/mcp"
	"github.com/faucetdb/tablekeeper/internal/service"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
		allowRun  bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes suggestions and
plans as tools for AI agents. Supports stdio (default) and HTTP transports.

In stdio mode the server talks JSON-RPC over stdin/stdout, for clients that
launch it as a subprocess. In HTTP mode it listens on --port with the
Streamable HTTP transport and no authentication; use 'tablekeeper serve'
with mcp.enabled to put it behind bearer tokens.

The run tool is only registered with --allow-run or mcp.allow_run.`,
		Example: `  tablekeeper mcp                              # stdio mode
  tablekeeper mcp --transport http --port 3001 # HTTP mode
  tablekeeper mcp --allow-run                  # also expose execute-mode runs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Flags().Changed("transport"), transport, port, cmd.Flags().Changed("allow-run"), allowRun)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")
	cmd.Flags().BoolVar(&allowRun, "allow-run", false, "Register the run tool")

	return cmd
}

func runMCP(transportSet bool, transport string, port int, allowRunSet, allowRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if !transportSet && cfg.MCP.Transport != "" {
		transport = cfg.MCP.Transport
	}
	if !allowRunSet {
		allowRun = cfg.MCP.AllowRun
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := newRegistry()
	connectAll(cfg, registry, logger)
	defer registry.CloseAll()

	sessions := service.NewSessions(registry, store,
		maintainer.LockConfig{Enabled: cfg.Run.Lock, Timeout: cfg.LockTimeout()}, logger)
	mcpSrv := tkmcp.NewMCPServer(sessions, allowRun, versionString(), logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}

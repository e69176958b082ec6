package cli

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/faucetdb/tablekeeper/internal/maintainer"
	tkmcp "github.com/faucetdb/tablekeeper/internal/mcp"
	"github.com/faucetdb/tablekeeper/internal/server"
	"github.com/faucetdb/tablekeeper/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tablekeeper API server",
		Long: `Start the HTTP server that exposes suggestions, plans and runs for every
configured target. With mcp.enabled and mcp.transport set to http, the MCP
endpoint is mounted on the same listener under mcp.http_prefix.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Flags().Changed("host"), host, cmd.Flags().Changed("port"), port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP listen host")

	return cmd
}

func runServe(hostSet bool, host string, portSet bool, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	// 1. Tracking store
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("tracking store ready", "dialect", cfg.Tracking.Dialect)

	// 2. Connect targets
	registry := newRegistry()
	connectAll(cfg, registry, logger)
	defer registry.CloseAll()

	sessions := service.NewSessions(registry, store,
		maintainer.LockConfig{Enabled: cfg.Run.Lock, Timeout: cfg.LockTimeout()}, logger)

	// 3. Auth
	authSvc := service.NewAuthService(cfg.Auth.JWTSecret)
	if !authSvc.Enabled() {
		logger.Warn("auth.jwt_secret is empty: the API is unauthenticated")
	}

	// 4. HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	if hostSet || srvCfg.Host == "" {
		srvCfg.Host = host
	}
	if portSet || srvCfg.Port == 0 {
		srvCfg.Port = port
	}
	srvCfg.ShutdownTimeout = cfg.ShutdownTimeout()
	if len(cfg.Server.CORS.Origins) > 0 {
		srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	}
	if cfg.Server.RateLimit > 0 {
		srvCfg.RateLimit = cfg.Server.RateLimit
	}
	if cfg.Server.TLS.Enabled {
		srvCfg.TLSCertFile = cfg.Server.TLS.CertFile
		srvCfg.TLSKeyFile = cfg.Server.TLS.KeyFile
	}
	srvCfg.Version = versionString()

	if cfg.MCP.Enabled && cfg.MCP.Transport == "http" {
		mcpSrv := tkmcp.NewMCPServer(sessions, cfg.MCP.AllowRun, versionString(), logger)
		srvCfg.MCP = mcpserver.NewStreamableHTTPServer(mcpSrv.Server())
		if cfg.MCP.HTTPPrefix != "" {
			srvCfg.MCPPrefix = cfg.MCP.HTTPPrefix
		}
	}

	srv := server.New(srvCfg, sessions, authSvc, logger)

	scheme := "http"
	if srvCfg.TLSCertFile != "" {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ tablekeeper %s\n", versionString())
	fmt.Printf("→ Listening on %s\n", base)
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Printf("→ Health:     %s/healthz\n", base)
	if srvCfg.MCP != nil {
		fmt.Printf("→ MCP:        %s%s\n", base, srvCfg.MCPPrefix)
	}
	fmt.Printf("→ Connected targets: %d of %d\n", len(registry.ListTargets()), len(cfg.Targets))
	fmt.Println()

	return srv.ListenAndServe()
}

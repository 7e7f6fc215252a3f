package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenmcp/warden/internal/approval"
	"github.com/wardenmcp/warden/internal/gateway"
	wmcp "github.com/wardenmcp/warden/internal/mcp"
	"github.com/wardenmcp/warden/internal/policy"
	"github.com/wardenmcp/warden/internal/ratelimit"
	"github.com/wardenmcp/warden/internal/service"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		httpAddr  string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server",
		Long: `Expose the gateway over the Model Context Protocol so MCP-capable
clients can route calls through policy enforcement. The stdio transport is
for direct client integration; the http transport serves streamable HTTP.`,
		Example: `  warden mcp
  warden mcp --transport http --http-addr :8090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, httpAddr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to use (stdio or http)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8090", "Listen address for the http transport")

	return cmd
}

func runMCP(transport, httpAddr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging, false)

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	snap, err := policy.Build(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}

	registry := gateway.NewRegistry()
	defer registry.CloseAll()
	if err := connectBackends(ctx, cfg, store, registry, logger); err != nil {
		return fmt.Errorf("connect backends: %w", err)
	}

	limiter := ratelimit.New(snap.Window)
	stopSweep := limiter.StartSweeper(10 * time.Minute)
	defer stopSweep()

	auditLog, err := buildAuditLogger(ctx, cfg.Audit, store, logger)
	if err != nil {
		return fmt.Errorf("audit storage: %w", err)
	}
	defer auditLog.Close()

	dispatcher := buildDispatcher(cfg.Notifications, logger)
	engine := approval.NewEngine(approval.NewSQLiteStore(store.DB()), dispatcher, logger)
	stopEngine := engine.StartSweeper(ctx, time.Minute)
	defer stopEngine()

	authSvc := service.NewAuthService(store, jwtSecret(cfg))

	gw := gateway.New(snap, registry, limiter, engine, auditLog, nil, logger)

	mcpSrv := wmcp.NewMCPServer(gw, engine, authSvc, versionString(), logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		logger.Info("mcp http server starting", "addr", httpAddr)
		return mcpSrv.ServeHTTP(httpAddr)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
	}
}

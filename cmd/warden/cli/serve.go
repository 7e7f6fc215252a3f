package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardenmcp/warden/internal/approval"
	"github.com/wardenmcp/warden/internal/audit"
	"github.com/wardenmcp/warden/internal/config"
	"github.com/wardenmcp/warden/internal/gateway"
	wmcp "github.com/wardenmcp/warden/internal/mcp"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/notify"
	"github.com/wardenmcp/warden/internal/policy"
	"github.com/wardenmcp/warden/internal/ratelimit"
	"github.com/wardenmcp/warden/internal/server"
	"github.com/wardenmcp/warden/internal/service"
	"github.com/wardenmcp/warden/internal/telemetry"
)

const banner = `
__      ___   ___ ___  ___ _  _
\ \    / /_\ | _ \   \| __| \| |
 \ \/\/ / _ \|   / |) | _|| .\ |
  \_/\_/_/ \_\_|_\___/|___|_|\_|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Warden gateway",
		Long:  "Start the HTTP server that proxies operation calls through the governance pipeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg.Logging, dev)
	ctx := context.Background()

	// Config store (SQLite under the data dir).
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("init config store: %w", err)
	}
	defer store.Close()
	logger.Info("config store initialized", "path", resolveDataDir())

	// Policy snapshot: YAML roles/rules/quotas merged with store roles.
	snap, err := policy.Build(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}
	logger.Info("policy loaded",
		"roles", len(snap.Roles),
		"approval_rules", len(snap.ApprovalRules),
		"window", snap.Window,
	)

	// Backend registry: YAML backends plus store backends.
	registry := gateway.NewRegistry()
	if err := connectBackends(ctx, cfg, store, registry, logger); err != nil {
		return err
	}
	defer registry.CloseAll()

	// Policy rate limiter.
	limiter := ratelimit.New(snap.Window)
	stopLimiter := limiter.StartSweeper(10 * time.Minute)
	defer stopLimiter()

	// Audit trail.
	auditLog, err := buildAuditLogger(ctx, cfg.Audit, store, logger)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	retention, err := audit.NewRetention(auditLog, cfg.Audit.RetentionDays, cfg.Audit.PruneSchedule, logger)
	if err != nil {
		return fmt.Errorf("audit retention: %w", err)
	}
	retention.Start()
	defer retention.Stop()

	// Notification channels.
	dispatcher := buildDispatcher(cfg.Notifications, logger)

	// Approval engine over the shared SQLite database.
	engine := approval.NewEngine(approval.NewSQLiteStore(store.DB()), dispatcher, logger)
	stopSweeper := engine.StartSweeper(ctx, time.Minute)
	defer stopSweeper()

	// Metrics.
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics()
		engine.SetRecorder(metrics)
	}

	// Authentication.
	authSvc := service.NewAuthService(store, jwtSecret(cfg))

	hasAdmin, err := store.HasAnyAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: warden admin create")
	}

	// The pipeline.
	var recorder gateway.Recorder
	if metrics != nil {
		recorder = metrics
	}
	gw := gateway.New(snap, registry, limiter, engine, auditLog, recorder, logger)

	// Optional MCP surface over HTTP alongside the REST server.
	if cfg.MCP.Enabled && cfg.MCP.Transport == "http" && cfg.MCP.HTTPAddr != "" {
		mcpSrv := wmcp.NewMCPServer(gw, engine, authSvc, versionString(), logger)
		go func() {
			if err := mcpSrv.ServeHTTP(cfg.MCP.HTTPAddr); err != nil {
				logger.Error("mcp server exited", "error", err)
			}
		}()
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.RequestsPerMin = cfg.Server.RequestsPerMin
	srvCfg.APIKeyHeader = cfg.Auth.APIKeyHeader
	srvCfg.Version = versionString()
	if len(cfg.Server.CORS.Origins) > 0 {
		srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	}
	if cfg.Server.ShutdownTimeout != "" {
		if d, err := time.ParseDuration(cfg.Server.ShutdownTimeout); err == nil {
			srvCfg.ShutdownTimeout = d
		}
	}
	if cfg.Server.MaxBodySize != "" {
		n, err := config.ParseSize(cfg.Server.MaxBodySize)
		if err != nil {
			return fmt.Errorf("server.max_body_size: %w", err)
		}
		srvCfg.MaxBodySize = n
	}
	if cfg.Auth.JWTExpiry != "" {
		d, err := time.ParseDuration(cfg.Auth.JWTExpiry)
		if err != nil {
			return fmt.Errorf("auth.jwt_expiry: %w", err)
		}
		srvCfg.SessionTTL = d
	}
	if cfg.Metrics.Path != "" {
		srvCfg.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls: cert_file and key_file are required when enabled")
		}
		srvCfg.TLSCert = cfg.Server.TLS.CertFile
		srvCfg.TLSKey = cfg.Server.TLS.KeyFile
	}

	srv := server.New(srvCfg, server.Deps{
		Gateway:   gw,
		Approvals: engine,
		Audit:     auditLog,
		Store:     store,
		AuthSvc:   authSvc,
		Metrics:   metrics,
	}, logger)

	writePID(os.Getpid())
	defer removePID()

	scheme := "http"
	if srvCfg.TLSCert != "" {
		scheme = "https"
	}
	fmt.Printf("Warden %s\n", versionString())
	fmt.Printf("  Listening on %s://%s:%d\n", scheme, cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  OpenAPI:  %s://%s:%d/openapi.json\n", scheme, cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Health:   %s://%s:%d/healthz\n", scheme, cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Backends: %d\n", len(registry.Names()))
	fmt.Println()

	return srv.ListenAndServe()
}

// connectBackends registers every active backend from the YAML config and
// the config store. A single unreachable backend is logged, not fatal.
func connectBackends(ctx context.Context, cfg *config.YAMLConfig, store *config.Store, registry *gateway.Registry, logger *slog.Logger) error {
	for _, b := range cfg.Backends {
		bc, err := backendFromYAML(b)
		if err != nil {
			return err
		}
		if _, err := registry.Connect(bc); err != nil {
			logger.Error("failed to connect backend", "backend", b.Name, "error", err)
		} else {
			logger.Info("connected backend", "backend", b.Name, "kind", b.Kind)
		}
	}

	backends, err := store.ListBackends(ctx)
	if err != nil {
		logger.Warn("failed to load backends from store", "error", err)
		return nil
	}
	for _, b := range backends {
		if !b.IsActive {
			continue
		}
		if _, err := registry.Connect(b); err != nil {
			logger.Error("failed to connect backend", "backend", b.Name, "error", err)
		} else {
			logger.Info("connected backend", "backend", b.Name, "kind", b.Kind)
		}
	}
	return nil
}

// buildAuditLogger selects the audit storage backend from config.
func buildAuditLogger(ctx context.Context, cfg config.AuditYAML, store *config.Store, logger *slog.Logger) (*audit.Logger, error) {
	switch cfg.Storage {
	case "", "sqlite":
		return audit.NewLogger(audit.NewSQLiteAppender(store.DB()), logger), nil
	case "postgres":
		appender, err := audit.NewPostgresAppender(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres audit store: %w", err)
		}
		return audit.NewLogger(appender, logger), nil
	default:
		return nil, fmt.Errorf("unsupported audit storage %q", cfg.Storage)
	}
}

// buildDispatcher registers the configured notification channels. The "log"
// channel is always available as a fallback.
func buildDispatcher(channels []config.ChannelYAML, logger *slog.Logger) *notify.Dispatcher {
	d := notify.NewDispatcher(logger)
	d.Register(notify.NewLogSender("log", logger))

	for _, ch := range channels {
		switch ch.Type {
		case "slack":
			d.Register(notify.NewSlackSender(ch.Name, ch.WebhookURL))
		case "email":
			d.Register(notify.NewEmailSender(ch.Name, ch.SMTPServer, ch.SMTPFrom, ch.To))
		case "log", "":
			d.Register(notify.NewLogSender(ch.Name, logger))
		default:
			logger.Warn("unknown notification channel type", "name", ch.Name, "type", ch.Type)
		}
	}
	return d
}

func jwtSecret(cfg *config.YAMLConfig) string {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	if s := viper.GetString("auth.jwt_secret"); s != "" {
		return s
	}
	return "warden-dev-secret-change-me"
}

func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func backendFromYAML(b config.BackendYAML) (model.BackendConfig, error) {
	bc := model.BackendConfig{
		Name:     b.Name,
		Kind:     b.Kind,
		URL:      b.URL,
		IsActive: true,
	}
	if b.Timeout != "" {
		d, err := time.ParseDuration(b.Timeout)
		if err != nil {
			return bc, fmt.Errorf("backend %q timeout: %w", b.Name, err)
		}
		bc.Timeout = d
	}
	return bc, nil
}

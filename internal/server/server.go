// Package server wires the HTTP surface: the call endpoint, the approval and
// audit APIs, the system management API, health probes, and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wardenmcp/warden/internal/approval"
	"github.com/wardenmcp/warden/internal/audit"
	"github.com/wardenmcp/warden/internal/config"
	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/handler"
	"github.com/wardenmcp/warden/internal/server/middleware"
	"github.com/wardenmcp/warden/internal/service"
	"github.com/wardenmcp/warden/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RequestsPerMin  int    // per-IP flood limit, 0 disables
	MaxBodySize     int64  // request body cap in bytes, 0 disables
	APIKeyHeader    string // header carrying API keys, "" means X-API-Key
	MetricsPath     string // Prometheus scrape path
	TLSCert         string // serve TLS when both cert and key are set
	TLSKey          string
	SessionTTL      time.Duration // admin JWT lifetime, 0 uses the handler default
	Version         string
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		RequestsPerMin:  600,
		MaxBodySize:     1 << 20,
		MetricsPath:     "/metrics",
		Version:         "dev",
	}
}

// Deps carries the wired components the server serves.
type Deps struct {
	Gateway   *gateway.Gateway
	Approvals *approval.Engine
	Audit     *audit.Logger
	Store     *config.Store
	AuthSvc   *service.AuthService
	Metrics   *telemetry.Metrics
}

// Server is the top-level HTTP server for Warden.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes and middleware wired, ready to
// listen.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	if s.deps.Metrics != nil {
		r.Use(middleware.Metrics(s.deps.Metrics))
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	if s.cfg.RequestsPerMin > 0 {
		r.Use(middleware.RateLimit(s.cfg.RequestsPerMin))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	metricsPath := s.cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, metricsPath, promhttp.HandlerFor(
			s.deps.Metrics.Registry,
			promhttp.HandlerOpts{},
		))
	}

	openapiHandler := handler.NewOpenAPIHandler(s.deps.Gateway.Registry(), s.cfg.Version)
	r.Get("/openapi.json", openapiHandler.ServeSpec)

	r.Route("/api/v1", func(r chi.Router) {
		sysHandler := handler.NewSystemHandler(s.deps.Store, s.deps.AuthSvc, s.deps.Gateway.Registry(), s.cfg.SessionTTL)

		// Session endpoints are unauthenticated (login) or self-authenticated
		// (logout).
		r.Post("/system/admin/session", sysHandler.Login)
		r.Delete("/system/admin/session", sysHandler.Logout)

		// The gateway call surface: any authenticated principal.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.AuthSvc, s.cfg.APIKeyHeader))

			callHandler := handler.NewCallHandler(s.deps.Gateway)
			r.Post("/call", callHandler.Call)

			apHandler := handler.NewApprovalHandler(s.deps.Approvals)
			r.Get("/approval", apHandler.List)
			r.Get("/approval/{approvalId}", apHandler.Get)
			r.Post("/approval/{approvalId}/approve", apHandler.Approve)
			r.Post("/approval/{approvalId}/reject", apHandler.Reject)
			r.Post("/approval/{approvalId}/cancel", apHandler.Cancel)
		})

		// Admin-only management surface.
		r.Route("/system", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.AuthSvc, s.cfg.APIKeyHeader))
			r.Use(middleware.RequireAdmin())

			sysHandler := handler.NewSystemHandler(s.deps.Store, s.deps.AuthSvc, s.deps.Gateway.Registry(), s.cfg.SessionTTL)

			r.Get("/backend", sysHandler.ListBackends)
			r.Post("/backend", sysHandler.CreateBackend)
			r.Get("/backend/{backendName}", sysHandler.GetBackend)
			r.Put("/backend/{backendName}", sysHandler.UpdateBackend)
			r.Delete("/backend/{backendName}", sysHandler.DeleteBackend)

			r.Get("/role", sysHandler.ListRoles)
			r.Post("/role", sysHandler.CreateRole)
			r.Get("/role/{roleId}", sysHandler.GetRole)
			r.Put("/role/{roleId}", sysHandler.UpdateRole)
			r.Delete("/role/{roleId}", sysHandler.DeleteRole)

			r.Get("/admin", sysHandler.ListAdmins)
			r.Post("/admin", sysHandler.CreateAdmin)

			r.Get("/api-key", sysHandler.ListAPIKeys)
			r.Post("/api-key", sysHandler.CreateAPIKey)
			r.Delete("/api-key/{keyId}", sysHandler.RevokeAPIKey)

			ruleHandler := handler.NewRuleHandler(s.deps.Gateway.Policy())
			r.Get("/rule", ruleHandler.List)

			auditHandler := handler.NewAuditHandler(s.deps.Audit)
			r.Get("/audit", auditHandler.Search)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 when the process is up.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when all registered
// backends are reachable, 503 when any is not.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	registry := s.deps.Gateway.Registry()
	for _, name := range registry.Names() {
		b, err := registry.Get(name)
		if err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
			continue
		}
		if err := b.Ping(r.Context()); err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until SIGINT or SIGTERM,
// then drains in-flight requests and closes the backend connections.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			s.logger.Info("server starting", "addr", addr, "tls", true)
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			s.logger.Info("server starting", "addr", addr)
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.deps.Gateway.Registry().CloseAll()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

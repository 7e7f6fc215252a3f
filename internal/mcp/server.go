// Package mcp exposes Warden itself as an MCP server, so agent hosts can
// route backend operations through the governance pipeline with the same
// semantics as the HTTP call endpoint.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wardenmcp/warden/internal/approval"
	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/service"
)

// MCPServer wraps the mcp-go server with Warden's tool and resource
// registrations.
type MCPServer struct {
	gw        *gateway.Gateway
	approvals *approval.Engine
	authSvc   *service.AuthService
	logger    *slog.Logger
	server    *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with the Warden tools and
// resources, ready to serve over stdio or HTTP.
func NewMCPServer(gw *gateway.Gateway, approvals *approval.Engine, authSvc *service.AuthService, version string, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		gw:        gw,
		approvals: approvals,
		authSvc:   authSvc,
		logger:    logger,
	}

	mcpServer := server.NewMCPServer(
		"Warden Gateway",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go server, useful for testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, the integration path for
// agent hosts that launch Warden as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in streamable HTTP mode on addr.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

// principal resolves the caller's identity. The per-call api_key argument
// wins; the WARDEN_API_KEY environment variable covers stdio hosts that set
// credentials once at launch.
func (s *MCPServer) principal(ctx context.Context, request mcp.CallToolRequest) (*model.Principal, error) {
	key := request.GetString("api_key", "")
	if key == "" {
		key = os.Getenv("WARDEN_API_KEY")
	}
	if key == "" {
		return nil, &gateway.AuthenticationError{Cause: errors.New("no API key: pass api_key or set WARDEN_API_KEY")}
	}
	p, err := s.authSvc.ValidateAPIKey(ctx, key)
	if err != nil {
		return nil, &gateway.AuthenticationError{Cause: err}
	}
	return p, nil
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{ReadOnlyHint: boolPtr(false)}
}

func boolPtr(b bool) *bool { return &b }

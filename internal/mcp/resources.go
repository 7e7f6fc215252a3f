package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wardenmcp/warden/internal/model"
)

// registerResources adds read-only resources LLM clients can load into
// context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			"warden://backends",
			"Governed Backend Servers",
			mcp.WithResourceDescription(
				"The backend servers reachable through this gateway.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleBackendsResource,
	)

	srv.AddResource(
		mcp.NewResource(
			"warden://approvals/pending",
			"Pending Approval Requests",
			mcp.WithResourceDescription(
				"Approval requests currently waiting for sign-off.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handlePendingApprovalsResource,
	)
}

func (s *MCPServer) handleBackendsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(s.gw.Registry().Names(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal backends: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "warden://backends",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func (s *MCPServer) handlePendingApprovalsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reqs, err := s.approvals.List(ctx, model.ApprovalPending, 100)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	b, err := json.MarshalIndent(reqs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal approvals: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "warden://approvals/pending",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

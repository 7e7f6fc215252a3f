package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/model"
)

// registerTools registers the Warden MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	srv.AddTool(
		mcp.NewTool("warden_call",
			mcp.WithDescription(
				"Invoke an operation on a governed backend server. The call passes "+
					"Warden's authorization, rate-limit, and approval checks before it is "+
					"forwarded; the result reports success, denial, or a pending approval "+
					"with its approval_id. Resubmit with approval_id once approved.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("server",
				mcp.Required(),
				mcp.Description("Backend server name (see warden_list_backends)"),
			),
			mcp.WithString("method",
				mcp.Required(),
				mcp.Description("Operation name on the backend, e.g. create_issue"),
			),
			mcp.WithObject("params",
				mcp.Description("Operation parameters as a JSON object"),
			),
			mcp.WithString("approval_id",
				mcp.Description("ID of an approved request to resume"),
			),
			mcp.WithString("api_key",
				mcp.Description("Warden API key; defaults to WARDEN_API_KEY"),
			),
		),
		s.handleCall,
	)

	srv.AddTool(
		mcp.NewTool("warden_approval_status",
			mcp.WithDescription(
				"Check the state of an approval request: pending, approved, rejected, "+
					"timed_out, or canceled. Poll this after warden_call returns "+
					"pending_approval, then resubmit the call with the approval_id.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("approval_id",
				mcp.Required(),
				mcp.Description("Approval request ID"),
			),
			mcp.WithString("api_key",
				mcp.Description("Warden API key; defaults to WARDEN_API_KEY"),
			),
		),
		s.handleApprovalStatus,
	)

	srv.AddTool(
		mcp.NewTool("warden_list_backends",
			mcp.WithDescription(
				"List the backend servers reachable through this gateway. Use this "+
					"first to discover what can be called.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("api_key",
				mcp.Description("Warden API key; defaults to WARDEN_API_KEY"),
			),
		),
		s.handleListBackends,
	)
}

// handleCall runs one operation through the pipeline.
func (s *MCPServer) handleCall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.principal(ctx, request)
	if err != nil {
		return toolError("authentication failed: %v", err)
	}

	serverName, err := requireString(request, "server")
	if err != nil {
		return toolError("%v", err)
	}
	method, err := requireString(request, "method")
	if err != nil {
		return toolError("%v", err)
	}

	result := s.gw.Execute(ctx, *p, &gateway.CallRequest{
		Server:     serverName,
		Method:     method,
		Params:     getObjectArg(request, "params"),
		ApprovalID: request.GetString("approval_id", ""),
	})

	if result.Status == model.StatusError && result.Error != nil {
		return toolError("call failed: %s", result.Error.Message)
	}
	return successJSON(result)
}

// handleApprovalStatus reports one approval request's current state.
func (s *MCPServer) handleApprovalStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.principal(ctx, request); err != nil {
		return toolError("authentication failed: %v", err)
	}

	id, err := requireString(request, "approval_id")
	if err != nil {
		return toolError("%v", err)
	}

	req, err := s.approvals.Get(ctx, id)
	if err != nil {
		return toolError("approval lookup failed: %v", err)
	}
	return successJSON(req)
}

// handleListBackends lists the active backend names.
func (s *MCPServer) handleListBackends(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.principal(ctx, request); err != nil {
		return toolError("authentication failed: %v", err)
	}
	return successJSON(map[string]any{
		"backends": s.gw.Registry().Names(),
	})
}

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wardenmcp/warden/internal/model"
)

// MCPBackend forwards operations to an upstream MCP server over streamable
// HTTP. Each gateway method maps to an MCP tool call of the same name. The
// client is connected lazily on the first dispatch and reused after.
type MCPBackend struct {
	name    string
	url     string
	timeout time.Duration

	mu     sync.Mutex
	client *mcpclient.Client
}

// NewMCPBackend creates an MCP backend from its configuration.
func NewMCPBackend(cfg model.BackendConfig) (*MCPBackend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mcp backend %q needs a url", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = model.DefaultBackendTimeout
	}
	return &MCPBackend{
		name:    cfg.Name,
		url:     cfg.URL,
		timeout: timeout,
	}, nil
}

func (b *MCPBackend) Name() string { return b.name }

// connect establishes the client connection and performs the MCP
// initialization handshake. Callers hold b.mu.
func (b *MCPBackend) connectLocked(ctx context.Context) (*mcpclient.Client, error) {
	if b.client != nil {
		return b.client, nil
	}

	c, err := mcpclient.NewStreamableHttpClient(b.url)
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "warden",
		Version: "1.0.0",
	}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	b.client = c
	return c, nil
}

// Dispatch calls the MCP tool named method with the given arguments and
// returns the tool result content.
func (b *MCPBackend) Dispatch(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.mu.Lock()
	c, err := b.connectLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, &BackendError{Backend: b.name, Cause: err}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = method
	callReq.Params.Arguments = params

	result, err := c.CallTool(ctx, callReq)
	if err != nil {
		b.reset()
		return nil, &BackendError{Backend: b.name, Cause: err}
	}
	if result.IsError {
		return nil, &BackendError{
			Backend: b.name,
			Cause:   fmt.Errorf("tool %q failed: %s", method, contentText(result.Content)),
		}
	}

	return map[string]any{"content": contentText(result.Content)}, nil
}

// Ping lists the upstream's tools as a reachability check.
func (b *MCPBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.mu.Lock()
	c, err := b.connectLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return &BackendError{Backend: b.name, Cause: err}
	}
	if _, err := c.ListTools(ctx, mcp.ListToolsRequest{}); err != nil {
		b.reset()
		return &BackendError{Backend: b.name, Cause: err}
	}
	return nil
}

// reset drops the client so the next dispatch reconnects.
func (b *MCPBackend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
}

func (b *MCPBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

// contentText flattens MCP content items into one string. Non-text items are
// serialized as JSON.
func contentText(content []mcp.Content) string {
	out := ""
	for i, c := range content {
		if i > 0 {
			out += "\n"
		}
		if tc, ok := mcp.AsTextContent(c); ok {
			out += tc.Text
			continue
		}
		data, _ := json.Marshal(c)
		out += string(data)
	}
	return out
}

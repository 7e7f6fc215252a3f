package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wardenmcp/warden/internal/model"
)

const (
	maxDispatchAttempts = 3
	retryBaseDelay      = 200 * time.Millisecond
	maxResponseBytes    = 8 << 20
)

// HTTPBackend speaks JSON-RPC 2.0 over HTTP POST to an upstream server.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff inside the call's deadline.
type HTTPBackend struct {
	name    string
	url     string
	timeout time.Duration
	client  *http.Client
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  map[string]any  `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Code, e.Message)
}

// NewHTTPBackend creates a JSON-RPC HTTP backend from its configuration.
func NewHTTPBackend(cfg model.BackendConfig) (*HTTPBackend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http backend %q needs a url", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = model.DefaultBackendTimeout
	}
	return &HTTPBackend{
		name:    cfg.Name,
		url:     cfg.URL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (b *HTTPBackend) Name() string { return b.name }

// Dispatch POSTs one JSON-RPC call and decodes the result. A JSON-RPC error
// object from the upstream is returned as-is without retry; transport-level
// failures and 5xx responses are retried.
func (b *HTTPBackend) Dispatch(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.Must(uuid.NewV7()).String(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxDispatchAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, &BackendError{Backend: b.name, Cause: ctx.Err()}
			case <-time.After(delay):
			}
		}

		result, retryable, err := b.roundTrip(ctx, body)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (b *HTTPBackend) roundTrip(ctx context.Context, body []byte) (result map[string]any, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, &BackendError{Backend: b.name, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, true, &BackendError{Backend: b.name, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, true, &BackendError{
			Backend: b.name,
			Cause:   fmt.Errorf("upstream returned %s", resp.Status),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &BackendError{
			Backend: b.name,
			Cause:   fmt.Errorf("upstream returned %s", resp.Status),
		}
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&rpcResp); err != nil {
		return nil, true, &BackendError{Backend: b.name, Cause: fmt.Errorf("decode response: %w", err)}
	}
	if rpcResp.Error != nil {
		return nil, false, &BackendError{Backend: b.name, Cause: rpcResp.Error}
	}
	return rpcResp.Result, false, nil
}

// Ping issues a lightweight "ping" call to check reachability.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _, err := b.roundTrip(ctx, []byte(`{"jsonrpc":"2.0","id":"ping","method":"ping"}`))
	return err
}

func (b *HTTPBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

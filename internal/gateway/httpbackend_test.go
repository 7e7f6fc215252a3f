package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wardenmcp/warden/internal/model"
)

func rpcTestServer(t *testing.T, handler func(req rpcRequest) (any, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := handler(req)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHTTPBackend(t *testing.T, url string) *HTTPBackend {
	t.Helper()
	b, err := NewHTTPBackend(model.BackendConfig{Name: "up", Kind: model.BackendHTTP, URL: url, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPBackend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestHTTPBackendDispatch(t *testing.T) {
	srv := rpcTestServer(t, func(req rpcRequest) (any, *rpcError) {
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %q", req.JSONRPC)
		}
		if req.ID == "" {
			t.Error("request missing id")
		}
		if req.Method != "create_issue" {
			t.Errorf("method = %q", req.Method)
		}
		return map[string]any{"issue": float64(7), "title": req.Params["title"]}, nil
	})

	b := newTestHTTPBackend(t, srv.URL)
	result, err := b.Dispatch(context.Background(), "create_issue", map[string]any{"title": "hi"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result["issue"] != float64(7) || result["title"] != "hi" {
		t.Errorf("result = %v", result)
	}
}

func TestHTTPBackendUpstreamErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := rpcTestServer(t, func(req rpcRequest) (any, *rpcError) {
		calls.Add(1)
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	})

	b := newTestHTTPBackend(t, srv.URL)
	_, err := b.Dispatch(context.Background(), "nope", nil)

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("got %v, want BackendError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, JSON-RPC errors should not be retried", got)
	}
}

func TestHTTPBackendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": "x", "result": map[string]any{"ok": true},
		})
	}))
	t.Cleanup(srv.Close)

	b := newTestHTTPBackend(t, srv.URL)
	result, err := b.Dispatch(context.Background(), "flaky", nil)
	if err != nil {
		t.Fatalf("Dispatch after retries: %v", err)
	}
	if result["ok"] != true {
		t.Errorf("result = %v", result)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream called %d times, want 3", got)
	}
}

func TestHTTPBackendGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	b := newTestHTTPBackend(t, srv.URL)
	if _, err := b.Dispatch(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != maxDispatchAttempts {
		t.Errorf("upstream called %d times, want %d", got, maxDispatchAttempts)
	}
}

func TestHTTPBackendClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	b := newTestHTTPBackend(t, srv.URL)
	if _, err := b.Dispatch(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, 4xx should not be retried", got)
	}
}

func TestHTTPBackendRequiresURL(t *testing.T) {
	if _, err := NewHTTPBackend(model.BackendConfig{Name: "x", Kind: model.BackendHTTP}); err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestHTTPBackendPing(t *testing.T) {
	srv := rpcTestServer(t, func(req rpcRequest) (any, *rpcError) {
		if req.Method != "ping" {
			t.Errorf("method = %q, want ping", req.Method)
		}
		return map[string]any{}, nil
	})

	b := newTestHTTPBackend(t, srv.URL)
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

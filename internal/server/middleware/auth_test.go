package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wardenmcp/warden/internal/config"
	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/service"
)

const rawTestKey = "wdn_mwtest000000000000000000000000000000"

func newAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	role := &model.Role{Name: "developer", Permissions: []string{"github:read"}, IsActive: true}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	key := &model.APIKey{
		KeyHash:   config.HashAPIKey(rawTestKey),
		KeyPrefix: rawTestKey[:12],
		UserID:    "alice",
		RoleID:    role.ID,
		IsActive:  true,
	}
	if err := store.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("create key: %v", err)
	}
	return service.NewAuthService(store, "test-secret")
}

// echoPrincipal records the principal Authenticate attached to the context.
func echoPrincipal(captured **model.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateAPIKey(t *testing.T) {
	svc := newAuthService(t)
	var got *model.Principal
	h := Authenticate(svc, "")(echoPrincipal(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", rawTestKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.ID != "alice" || got.Role != "developer" {
		t.Errorf("principal = %+v", got)
	}
}

func TestAuthenticateBearerToken(t *testing.T) {
	svc := newAuthService(t)
	token, err := svc.IssueJWT(context.Background(),
		model.Principal{ID: "root@example.com", IsAdmin: true}, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	var got *model.Principal
	h := Authenticate(svc, "")(echoPrincipal(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got == nil || !got.IsAdmin {
		t.Errorf("principal = %+v", got)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	svc := newAuthService(t)
	h := Authenticate(svc, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler ran without credentials")
	}))

	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no credentials", func(r *http.Request) {}},
		{"bad api key", func(r *http.Request) { r.Header.Set("X-API-Key", "wdn_wrong") }},
		{"bad bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %s", ct)
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestAPIKeyTakesPrecedenceOverBearer(t *testing.T) {
	svc := newAuthService(t)
	var got *model.Principal
	h := Authenticate(svc, "")(echoPrincipal(&got))

	// A valid key plus a garbage bearer header: the key wins and the
	// request is authenticated as the key's user.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", rawTestKey)
	req.Header.Set("Authorization", "Bearer junk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got == nil || got.ID != "alice" {
		t.Errorf("principal = %+v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireAdmin()(inner)

	tests := []struct {
		name      string
		principal *model.Principal
		want      int
	}{
		{"admin", &model.Principal{ID: "root", IsAdmin: true}, http.StatusOK},
		{"non-admin", &model.Principal{ID: "alice", Role: "developer"}, http.StatusForbidden},
		{"no principal", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.principal != nil {
				req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, tt.principal))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestGetPrincipalMissing(t *testing.T) {
	if p := GetPrincipal(context.Background()); p != nil {
		t.Errorf("GetPrincipal on empty context = %+v", p)
	}
}

func TestAuthenticateCustomHeader(t *testing.T) {
	svc := newAuthService(t)
	var got *model.Principal
	h := Authenticate(svc, "X-Gateway-Token")(echoPrincipal(&got))

	// The configured header carries the key.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Gateway-Token", rawTestKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.ID != "alice" {
		t.Errorf("principal = %+v", got)
	}

	// The default header is ignored once an override is set.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", rawTestKey)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("default header accepted despite override: %d", rec.Code)
	}
}

func TestAuthErrorCarriesKind(t *testing.T) {
	svc := newAuthService(t)
	h := Authenticate(svc, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), gateway.KindAuthentication) {
		t.Errorf("body missing error kind: %s", rec.Body.String())
	}
}

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// DefaultAPIKeyHeader is the header consulted for API keys when no override
// is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// Authenticate returns an HTTP middleware that resolves the request's
// credentials into a Principal. Two methods are supported:
//
//  1. API key via the apiKeyHeader header (gateway callers); an empty
//     apiKeyHeader falls back to DefaultAPIKeyHeader
//  2. JWT Bearer token via the Authorization header (admins and callers
//     issued a session token)
//
// On success the Principal is attached to the request context. On failure a
// 401 JSON error response is returned; nothing downstream runs without an
// identity.
func Authenticate(authSvc *service.AuthService, apiKeyHeader string) func(http.Handler) http.Handler {
	if apiKeyHeader == "" {
		apiKeyHeader = DefaultAPIKeyHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *model.Principal

			if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
				p, err := authSvc.ValidateAPIKey(r.Context(), apiKey)
				if err != nil {
					writeAuthError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				principal = p
			}

			if principal == nil {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					p, err := authSvc.ValidateJWT(r.Context(), strings.TrimPrefix(auth, "Bearer "))
					if err != nil {
						writeAuthError(w, http.StatusUnauthorized, "invalid token")
						return
					}
					principal = p
				}
			}

			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized,
					"authentication required: provide "+apiKeyHeader+" header or Bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces admin access on the system management API. Must run
// after Authenticate.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil || !p.IsAdmin {
				writeAuthError(w, http.StatusForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context, or nil
// for an unauthenticated request.
func GetPrincipal(ctx context.Context) *model.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*model.Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	kind := gateway.KindAuthentication
	if status == http.StatusForbidden {
		kind = gateway.KindPermission
	}
	// Hand-built JSON to avoid an import cycle with the handler package.
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"kind":%q}}`, status, message, kind)
}

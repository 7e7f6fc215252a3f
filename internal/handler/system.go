package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wardenmcp/warden/internal/config"
	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/service"
)

// DefaultSessionTTL is the admin session lifetime when none is configured.
const DefaultSessionTTL = 24 * time.Hour

// SystemHandler manages Warden's own configuration: backends, roles, admins,
// and API keys.
type SystemHandler struct {
	store      *config.Store
	authSvc    *service.AuthService
	registry   *gateway.Registry
	sessionTTL time.Duration
}

// NewSystemHandler creates a SystemHandler. A non-positive sessionTTL falls
// back to DefaultSessionTTL.
func NewSystemHandler(store *config.Store, authSvc *service.AuthService, registry *gateway.Registry, sessionTTL time.Duration) *SystemHandler {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &SystemHandler{
		store:      store,
		authSvc:    authSvc,
		registry:   registry,
		sessionTTL: sessionTTL,
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"session_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// Login authenticates an admin user and returns a JWT session token.
// POST /api/v1/system/admin/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	admin, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ttl := h.sessionTTL
	token, err := h.authSvc.IssueJWT(r.Context(), model.Principal{
		ID:      admin.Email,
		IsAdmin: true,
	}, ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(ttl.Seconds()),
		Email:     admin.Email,
		Name:      admin.Name,
	})
}

// Logout invalidates the session client-side. JWTs are stateless; the client
// discards its token.
// DELETE /api/v1/system/admin/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ---------------------------------------------------------------------------
// Backend management
// ---------------------------------------------------------------------------

type backendRequest struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Kind       string `json:"kind"`
	URL        string `json:"url"`
	TimeoutSec int    `json:"timeout_seconds"`
	IsActive   *bool  `json:"is_active"`
}

// ListBackends returns all configured backends.
// GET /api/v1/system/backend
func (h *SystemHandler) ListBackends(w http.ResponseWriter, r *http.Request) {
	backends, err := h.store.ListBackends(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list backends: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backends": backends,
		"count":    len(backends),
	})
}

// CreateBackend registers a new backend and connects it immediately when
// active.
// POST /api/v1/system/backend
func (h *SystemHandler) CreateBackend(w http.ResponseWriter, r *http.Request) {
	var req backendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "name and kind are required")
		return
	}

	b := model.BackendConfig{
		Name:     req.Name,
		Label:    req.Label,
		Kind:     req.Kind,
		URL:      req.URL,
		Timeout:  time.Duration(req.TimeoutSec) * time.Second,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := h.store.CreateBackend(r.Context(), &b); err != nil {
		writeError(w, http.StatusConflict, "create backend: "+err.Error())
		return
	}

	if b.IsActive {
		if _, err := h.registry.Connect(b); err != nil {
			writeError(w, http.StatusBadGateway, "backend stored but not reachable: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, b)
}

// GetBackend returns one backend by name.
// GET /api/v1/system/backend/{backendName}
func (h *SystemHandler) GetBackend(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.GetBackendByName(r.Context(), chi.URLParam(r, "backendName"))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backend not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpdateBackend updates a backend's configuration and reconnects it.
// PUT /api/v1/system/backend/{backendName}
func (h *SystemHandler) UpdateBackend(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.GetBackendByName(r.Context(), chi.URLParam(r, "backendName"))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backend not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req backendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Label != "" {
		b.Label = req.Label
	}
	if req.Kind != "" {
		b.Kind = req.Kind
	}
	if req.URL != "" {
		b.URL = req.URL
	}
	if req.TimeoutSec > 0 {
		b.Timeout = time.Duration(req.TimeoutSec) * time.Second
	}
	if req.IsActive != nil {
		b.IsActive = *req.IsActive
	}

	if err := h.store.UpdateBackend(r.Context(), b); err != nil {
		writeError(w, http.StatusInternalServerError, "update backend: "+err.Error())
		return
	}

	if b.IsActive {
		if _, err := h.registry.Connect(*b); err != nil {
			writeError(w, http.StatusBadGateway, "backend stored but not reachable: "+err.Error())
			return
		}
	} else {
		h.registry.Disconnect(b.Name)
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteBackend removes a backend and disconnects it.
// DELETE /api/v1/system/backend/{backendName}
func (h *SystemHandler) DeleteBackend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "backendName")
	b, err := h.store.GetBackendByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backend not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.store.DeleteBackend(r.Context(), b.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete backend: "+err.Error())
		return
	}
	h.registry.Disconnect(name)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ---------------------------------------------------------------------------
// Role management
// ---------------------------------------------------------------------------

type roleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	IsActive    *bool    `json:"is_active"`
}

// ListRoles returns all roles.
// GET /api/v1/system/role
func (h *SystemHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list roles: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"roles": roles,
		"count": len(roles),
	})
}

// CreateRole creates a role.
// POST /api/v1/system/role
func (h *SystemHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	role := model.Role{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.store.CreateRole(r.Context(), &role); err != nil {
		writeError(w, http.StatusConflict, "create role: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// GetRole returns one role by ID.
// GET /api/v1/system/role/{roleId}
func (h *SystemHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid role ID")
		return
	}
	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "role not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// UpdateRole updates a role's permissions or metadata.
// PUT /api/v1/system/role/{roleId}
func (h *SystemHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid role ID")
		return
	}
	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "role not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req roleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name != "" {
		role.Name = req.Name
	}
	if req.Description != "" {
		role.Description = req.Description
	}
	if req.Permissions != nil {
		role.Permissions = req.Permissions
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}

	if err := h.store.UpdateRole(r.Context(), role); err != nil {
		writeError(w, http.StatusInternalServerError, "update role: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// DeleteRole deletes a role.
// DELETE /api/v1/system/role/{roleId}
func (h *SystemHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid role ID")
		return
	}
	if err := h.store.DeleteRole(r.Context(), id); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "role not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete role: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ---------------------------------------------------------------------------
// Admin management
// ---------------------------------------------------------------------------

type adminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// ListAdmins returns all admin users.
// GET /api/v1/system/admin
func (h *SystemHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.store.ListAdmins(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list admins: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"admins": admins,
		"count":  len(admins),
	})
}

// CreateAdmin creates an admin user.
// POST /api/v1/system/admin
func (h *SystemHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	admin := model.Admin{
		Email:        req.Email,
		PasswordHash: config.HashAPIKey(req.Password),
		Name:         req.Name,
		IsActive:     true,
	}
	if err := h.store.CreateAdmin(r.Context(), &admin); err != nil {
		writeError(w, http.StatusConflict, "create admin: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, admin)
}

// ---------------------------------------------------------------------------
// API key management
// ---------------------------------------------------------------------------

type apiKeyRequest struct {
	Label      string `json:"label"`
	UserID     string `json:"user_id"`
	RoleID     int64  `json:"role_id"`
	Team       string `json:"team"`
	ExpiresIn  string `json:"expires_in,omitempty"` // duration, e.g. "720h"
}

// ListAPIKeys returns all API keys (hashes omitted).
// GET /api/v1/system/api-key
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list API keys: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_keys": keys,
		"count":    len(keys),
	})
}

// CreateAPIKey mints a new API key bound to a role. The raw key is returned
// exactly once; only its hash is stored.
// POST /api/v1/system/api-key
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.RoleID == 0 {
		writeError(w, http.StatusBadRequest, "user_id and role_id are required")
		return
	}
	if _, err := h.store.GetRole(r.Context(), req.RoleID); err != nil {
		writeError(w, http.StatusBadRequest, "role does not exist")
		return
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate key: "+err.Error())
		return
	}

	key := model.APIKey{
		KeyHash:   config.HashAPIKey(rawKey),
		KeyPrefix: rawKey[:12],
		Label:     req.Label,
		UserID:    req.UserID,
		RoleID:    req.RoleID,
		Team:      req.Team,
		IsActive:  true,
	}
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expires_in must be a duration")
			return
		}
		exp := time.Now().Add(d)
		key.ExpiresAt = &exp
	}

	if err := h.store.CreateAPIKey(r.Context(), &key); err != nil {
		writeError(w, http.StatusInternalServerError, "create API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"api_key": key,
		"key":     rawKey,
	})
}

// RevokeAPIKey deactivates an API key.
// DELETE /api/v1/system/api-key/{keyId}
func (h *SystemHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "keyId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key ID")
		return
	}
	if err := h.store.RevokeAPIKey(r.Context(), id); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "revoke API key: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "wdn_" + hex.EncodeToString(b), nil
}

package handler

import (
	"net/http"

	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/server/middleware"
)

// CallHandler serves the proxied operation endpoint.
type CallHandler struct {
	gw *gateway.Gateway
}

// NewCallHandler creates a CallHandler over the gateway.
func NewCallHandler(gw *gateway.Gateway) *CallHandler {
	return &CallHandler{gw: gw}
}

// Call runs one operation through the governance pipeline.
// POST /api/v1/call
func (h *CallHandler) Call(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req gateway.CallRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.RequestID = middleware.GetRequestID(r.Context())
	req.RemoteAddr = r.RemoteAddr

	result := h.gw.Execute(r.Context(), *p, &req)
	writeJSON(w, statusCode(result), result)
}

// statusCode maps a call outcome to its HTTP status.
func statusCode(res *model.CallResult) int {
	switch res.Status {
	case model.StatusSuccess:
		return http.StatusOK
	case model.StatusPendingApproval:
		return http.StatusAccepted
	case model.StatusDenied:
		return http.StatusForbidden
	case model.StatusRateLimited:
		return http.StatusTooManyRequests
	default:
		if res.Error != nil && res.Error.Code != 0 {
			return res.Error.Code
		}
		return http.StatusInternalServerError
	}
}

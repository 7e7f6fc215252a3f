package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wardenmcp/warden/internal/approval"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/server/middleware"
)

// ApprovalHandler serves the approval lifecycle endpoints.
type ApprovalHandler struct {
	engine *approval.Engine
}

// NewApprovalHandler creates an ApprovalHandler over the engine.
func NewApprovalHandler(engine *approval.Engine) *ApprovalHandler {
	return &ApprovalHandler{engine: engine}
}

// List returns approval requests, optionally filtered by state.
// GET /api/v1/approval?state=pending&limit=50
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	state := model.ApprovalState(queryString(r, "state"))
	limit := clampInt(queryInt(r, "limit", 50), 1, 500)

	reqs, err := h.engine.List(r.Context(), state, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list approvals: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": reqs,
		"count":     len(reqs),
	})
}

// Get returns one approval request by ID. Safe to poll: a read never moves
// the request anywhere except reporting an already-expired deadline.
// GET /api/v1/approval/{approvalId}
func (h *ApprovalHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.engine.Get(r.Context(), chi.URLParam(r, "approvalId"))
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type voteRequest struct {
	Approver string `json:"approver"`
}

// Approve records one approval vote.
// POST /api/v1/approval/{approvalId}/approve
func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.engine.Approve)
}

// Reject rejects a pending approval request.
// POST /api/v1/approval/{approvalId}/reject
func (h *ApprovalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.engine.Reject)
}

func (h *ApprovalHandler) vote(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, approver string) (*model.ApprovalRequest, error)) {
	var body voteRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	approver := body.Approver
	if approver == "" {
		if p := middleware.GetPrincipal(r.Context()); p != nil {
			approver = p.ID
		}
	}
	if approver == "" {
		writeError(w, http.StatusBadRequest, "approver is required")
		return
	}

	req, err := fn(r.Context(), chi.URLParam(r, "approvalId"), approver)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Cancel withdraws a pending request. Only the requester (or an admin) may
// cancel.
// POST /api/v1/approval/{approvalId}/cancel
func (h *ApprovalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "approvalId")

	req, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	p := middleware.GetPrincipal(r.Context())
	if p == nil || (req.Requester != p.ID && !p.IsAdmin) {
		writeError(w, http.StatusForbidden, "only the requester may cancel")
		return
	}

	req, err = h.engine.Cancel(r.Context(), id)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func writeApprovalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		writeError(w, http.StatusNotFound, "approval not found")
	case errors.Is(err, approval.ErrAlreadyFinal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, approval.ErrNotApprover):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Package gateway implements the request pipeline: every proxied operation
// call passes authorization, rate limiting, and approval gating before it is
// dispatched to a backend, and every call leaves exactly one audit record
// regardless of outcome.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wardenmcp/warden/internal/approval"
	"github.com/wardenmcp/warden/internal/audit"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/policy"
	"github.com/wardenmcp/warden/internal/ratelimit"
)

// Recorder receives pipeline outcomes for metrics. Implemented by the
// telemetry collector; nil disables instrumentation.
type Recorder interface {
	ObserveCall(subject, server, method, status, errorKind string, duration time.Duration)
	ObserveApprovalCreated(rule string)
	CallStarted()
	CallDone()
}

// CallRequest is one proxied operation call entering the pipeline.
type CallRequest struct {
	Server     string         `json:"server"`
	Method     string         `json:"method"`
	Params     map[string]any `json:"params,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`

	RequestID  string `json:"-"`
	RemoteAddr string `json:"-"`
}

// Gateway orchestrates the call pipeline over the policy snapshot and the
// backend registry.
type Gateway struct {
	policy    *policy.Snapshot
	registry  *Registry
	limiter   *ratelimit.Limiter
	approvals *approval.Engine
	audit     *audit.Logger
	metrics   Recorder
	logger    *slog.Logger
}

// New assembles a gateway. metrics may be nil.
func New(snap *policy.Snapshot, registry *Registry, limiter *ratelimit.Limiter, approvals *approval.Engine, auditLog *audit.Logger, metrics Recorder, logger *slog.Logger) *Gateway {
	return &Gateway{
		policy:    snap,
		registry:  registry,
		limiter:   limiter,
		approvals: approvals,
		audit:     auditLog,
		metrics:   metrics,
		logger:    logger,
	}
}

// Registry exposes the backend registry for health reporting.
func (g *Gateway) Registry() *Registry { return g.registry }

// Policy returns the active policy snapshot.
func (g *Gateway) Policy() *policy.Snapshot { return g.policy }

// Execute runs one call through the pipeline and returns the outcome
// envelope. The result always carries one of the call statuses; transport
// handlers map the status to a wire code. Exactly one audit record is
// written per call, and an audit write failure fails the call closed even
// when the backend dispatch succeeded.
func (g *Gateway) Execute(ctx context.Context, p model.Principal, req *CallRequest) *model.CallResult {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.Must(uuid.NewV7()).String()
	}
	if g.metrics != nil {
		g.metrics.CallStarted()
		defer g.metrics.CallDone()
	}

	result, approvalID := g.run(ctx, p, req)

	duration := time.Since(start)
	rec := &model.AuditRecord{
		RequestID:  req.RequestID,
		Principal:  p.ID,
		Role:       p.Role,
		Server:     req.Server,
		Method:     req.Method,
		ParamsJSON: marshalParams(req.Params),
		Status:     result.Status,
		ApprovalID: approvalID,
		DurationMs: float64(duration) / float64(time.Millisecond),
		RemoteAddr: req.RemoteAddr,
	}
	if result.Error != nil {
		rec.ErrorKind = errorKindOf(result)
	}

	if err := g.audit.Record(ctx, rec); err != nil {
		// Fail closed: a call whose decision cannot be recorded is not
		// allowed to report success.
		result = &model.CallResult{
			Status: model.StatusError,
			Error: &model.ErrorDetail{
				Code:    http.StatusInternalServerError,
				Message: "audit log unavailable",
				Context: map[string]any{"kind": KindAuditWrite},
			},
		}
	}

	if g.metrics != nil {
		g.metrics.ObserveCall(p.Subject(), req.Server, req.Method, result.Status, errorKindOf(result), duration)
	}

	g.logger.Info("call",
		"request_id", req.RequestID,
		"principal", p.ID,
		"role", p.Role,
		"operation", req.Server+"/"+req.Method,
		"status", result.Status,
		"duration_ms", rec.DurationMs,
	)
	return result
}

// run evaluates the governance pipeline and dispatches on success. Returns
// the outcome and the approval ID to stamp on the audit record, if any.
func (g *Gateway) run(ctx context.Context, p model.Principal, req *CallRequest) (*model.CallResult, string) {
	if req.Server == "" || req.Method == "" {
		return errorResult(http.StatusBadRequest, "server and method are required", KindInternal), ""
	}

	// Authorization first: a principal without the permission learns nothing
	// about quotas or approval state.
	perm := g.policy.PermissionFor(req.Server, req.Method)
	if err := g.policy.Authorize(p, perm); err != nil {
		return &model.CallResult{
			Status: model.StatusDenied,
			Error: &model.ErrorDetail{
				Code:    http.StatusForbidden,
				Message: err.Error(),
				Context: map[string]any{"kind": KindPermission, "permission": string(perm)},
			},
		}, ""
	}

	// Resuming an approved request skips rate limiting and the approval
	// gate: the original submission already consumed window budget and
	// created the gate.
	if req.ApprovalID != "" {
		return g.resume(ctx, p, req)
	}

	subject := p.Subject()
	operation := req.Server + "/" + req.Method
	quota := g.policy.QuotaFor(subject, req.Server, req.Method)
	decision := g.limiter.Allow(subject, operation, quota)
	if !decision.Allowed {
		return &model.CallResult{
			Status:     model.StatusRateLimited,
			RetryAfter: ratelimit.FormatRetryAfter(decision.RetryAfter),
			Error: &model.ErrorDetail{
				Code:    http.StatusTooManyRequests,
				Message: (&RateLimitError{Subject: subject, Operation: operation, RetryAfter: decision.RetryAfter}).Error(),
				Context: map[string]any{"kind": KindRateLimit},
			},
		}, ""
	}

	if rule := g.policy.MatchApprovalRule(req.Server, req.Method, req.Params); rule != nil {
		apReq, err := g.approvals.Create(ctx, rule, p.ID, req.Server, req.Method, req.Params)
		if err != nil {
			g.logger.Error("approval create failed", "request_id", req.RequestID, "error", err)
			return errorResult(http.StatusInternalServerError, "could not open approval request", KindInternal), ""
		}
		if g.metrics != nil {
			g.metrics.ObserveApprovalCreated(rule.Name)
		}
		return &model.CallResult{
			Status:     model.StatusPendingApproval,
			ApprovalID: apReq.ID,
		}, apReq.ID
	}

	return g.dispatch(ctx, req), ""
}

// resume dispatches a call whose approval gate has been satisfied. The
// approval must belong to the calling principal and name the same operation
// it was created for.
func (g *Gateway) resume(ctx context.Context, p model.Principal, req *CallRequest) (*model.CallResult, string) {
	apReq, err := g.approvals.Get(ctx, req.ApprovalID)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			return errorResult(http.StatusNotFound, "approval not found", KindInternal), req.ApprovalID
		}
		return errorResult(http.StatusInternalServerError, "approval lookup failed", KindInternal), req.ApprovalID
	}

	if apReq.Requester != p.ID || apReq.Server != req.Server || apReq.Method != req.Method {
		return &model.CallResult{
			Status: model.StatusDenied,
			Error: &model.ErrorDetail{
				Code:    http.StatusForbidden,
				Message: "approval does not match this call",
				Context: map[string]any{"kind": KindPermission},
			},
		}, req.ApprovalID
	}

	switch apReq.State {
	case model.ApprovalApproved:
		return g.dispatch(ctx, req), req.ApprovalID
	case model.ApprovalPending:
		return &model.CallResult{
			Status:     model.StatusPendingApproval,
			ApprovalID: apReq.ID,
		}, req.ApprovalID
	case model.ApprovalRejected:
		return &model.CallResult{
			Status: model.StatusDenied,
			Error: &model.ErrorDetail{
				Code:    http.StatusForbidden,
				Message: (&ApprovalRejectedError{ApprovalID: apReq.ID, RejectedBy: apReq.RejectedBy}).Error(),
				Context: map[string]any{"kind": KindApprovalReject},
			},
		}, req.ApprovalID
	case model.ApprovalTimedOut:
		return &model.CallResult{
			Status: model.StatusDenied,
			Error: &model.ErrorDetail{
				Code:    http.StatusForbidden,
				Message: (&ApprovalTimedOutError{ApprovalID: apReq.ID}).Error(),
				Context: map[string]any{"kind": KindApprovalExpiry},
			},
		}, req.ApprovalID
	default: // canceled
		return &model.CallResult{
			Status: model.StatusDenied,
			Error: &model.ErrorDetail{
				Code:    http.StatusForbidden,
				Message: "approval was canceled",
				Context: map[string]any{"kind": KindAlreadyFinal},
			},
		}, req.ApprovalID
	}
}

// dispatch forwards the call to its backend.
func (g *Gateway) dispatch(ctx context.Context, req *CallRequest) *model.CallResult {
	backend, err := g.registry.Get(req.Server)
	if err != nil {
		return &model.CallResult{
			Status: model.StatusError,
			Error: &model.ErrorDetail{
				Code:    http.StatusNotFound,
				Message: err.Error(),
				Context: map[string]any{"kind": KindUnknownBackend},
			},
		}
	}

	result, err := backend.Dispatch(ctx, req.Method, req.Params)
	if err != nil {
		return &model.CallResult{
			Status: model.StatusError,
			Error: &model.ErrorDetail{
				Code:    http.StatusBadGateway,
				Message: err.Error(),
				Context: map[string]any{"kind": KindBackend},
			},
		}
	}

	return &model.CallResult{
		Status: model.StatusSuccess,
		Result: result,
	}
}

func errorResult(code int, msg, kind string) *model.CallResult {
	return &model.CallResult{
		Status: model.StatusError,
		Error: &model.ErrorDetail{
			Code:    code,
			Message: msg,
			Context: map[string]any{"kind": kind},
		},
	}
}

func errorKindOf(res *model.CallResult) string {
	if res.Error == nil {
		return ""
	}
	if kind, ok := res.Error.Context["kind"].(string); ok {
		return kind
	}
	return KindInternal
}

func marshalParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(data)
}

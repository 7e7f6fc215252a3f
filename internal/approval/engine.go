// Package approval implements the approval gate state machine: PENDING
// requests accumulate approvals from unique approvers until the required
// count is met, a listed approver rejects, the deadline passes, or the
// requester cancels. Terminal states are final.
package approval

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/notify"
)

var (
	ErrNotFound     = errors.New("approval not found")
	ErrAlreadyFinal = errors.New("approval already in a terminal state")
	ErrNotApprover  = errors.New("identity is not a listed approver")
)

// Recorder receives approval lifecycle outcomes for metrics. Implemented by
// the telemetry collector; nil disables instrumentation.
type Recorder interface {
	ObserveApprovalResolved(state string)
}

// Engine advances approval requests through their lifecycle. All transitions
// are serialized under one mutex so racing approvers can never double-count
// a vote or resurrect a terminal request.
type Engine struct {
	store      Store
	dispatcher *notify.Dispatcher
	metrics    Recorder
	logger     *slog.Logger

	mu  sync.Mutex
	now func() time.Time // injectable clock for tests
}

// NewEngine creates an approval engine over the given store. The dispatcher
// may be nil when notification channels are not configured.
func NewEngine(store Store, dispatcher *notify.Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// SetRecorder attaches a metrics recorder for resolved approvals.
func (e *Engine) SetRecorder(r Recorder) {
	e.metrics = r
}

// Create opens a new PENDING approval request for a matched rule. The rule's
// approver set, required count, and timeout are snapshotted onto the request
// so later policy edits never affect it. Approvers are notified best-effort.
func (e *Engine) Create(ctx context.Context, rule *model.ApprovalRule, requester, server, method string, params map[string]any) (*model.ApprovalRequest, error) {
	id, err := generateID()
	if err != nil {
		return nil, fmt.Errorf("generating approval ID: %w", err)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	now := e.now().UTC()
	req := &model.ApprovalRequest{
		ID:         id,
		RuleName:   rule.Name,
		Requester:  requester,
		Server:     server,
		Method:     method,
		ParamsJSON: string(paramsJSON),
		Params:     params,
		Approvers:  append([]string(nil), rule.Approvers...),
		Require:    rule.Require,
		ApprovedBy: []string{},
		State:      model.ApprovalPending,
		CreatedAt:  now,
		Deadline:   now.Add(rule.Timeout),
	}

	if err := e.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("persist approval request: %w", err)
	}

	e.logger.Info("approval created",
		"approval_id", id,
		"rule", rule.Name,
		"requester", requester,
		"operation", server+"/"+method,
		"require", rule.Require,
	)

	if e.dispatcher != nil {
		e.dispatcher.Notify(ctx, req.Approvers, &notify.Message{
			Subject: "Approval required: " + server + "/" + method,
			Body:    notify.FormatApprovalBody(requester, server, method, id, rule.Require),
			Metadata: map[string]string{
				"approval_id": id,
				"state":       string(model.ApprovalPending),
			},
		})
	}

	return req, nil
}

// Get returns the request by ID. Reads on terminal requests are idempotent
// and never mutate state; an overdue PENDING request is reported as timed
// out (the sweeper persists the transition).
func (e *Engine) Get(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getLocked(ctx, id)
}

func (e *Engine) getLocked(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	req, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State == model.ApprovalPending && e.now().UTC().After(req.Deadline) {
		if err := e.finalize(ctx, req, model.ApprovalTimedOut, ""); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// Approve records one approval vote. Only listed approvers may vote; a
// duplicate vote from the same approver is a no-op. When the count of unique
// approvers reaches the required count the request becomes APPROVED.
func (e *Engine) Approve(ctx context.Context, id, approver string) (*model.ApprovalRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State.Terminal() {
		return req, ErrAlreadyFinal
	}
	if !req.HasApprover(approver) {
		return req, ErrNotApprover
	}
	if req.AlreadyApproved(approver) {
		return req, nil
	}

	req.ApprovedBy = append(req.ApprovedBy, approver)
	if len(req.ApprovedBy) >= req.Require {
		if err := e.finalize(ctx, req, model.ApprovalApproved, ""); err != nil {
			return nil, err
		}
	} else if err := e.store.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("persist approval vote: %w", err)
	}

	e.logger.Info("approval vote recorded",
		"approval_id", id,
		"approver", approver,
		"votes", len(req.ApprovedBy),
		"require", req.Require,
		"state", string(req.State),
	)
	return req, nil
}

// Reject moves a pending request to REJECTED. Any single listed approver may
// reject, regardless of accumulated approvals.
func (e *Engine) Reject(ctx context.Context, id, approver string) (*model.ApprovalRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State.Terminal() {
		return req, ErrAlreadyFinal
	}
	if !req.HasApprover(approver) {
		return req, ErrNotApprover
	}

	if err := e.finalize(ctx, req, model.ApprovalRejected, approver); err != nil {
		return nil, err
	}

	e.logger.Info("approval rejected", "approval_id", id, "approver", approver)
	return req, nil
}

// Cancel moves a pending request to CANCELED at the requester's ask. On a
// terminal request it is a no-op reported as ErrAlreadyFinal.
func (e *Engine) Cancel(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State.Terminal() {
		return req, ErrAlreadyFinal
	}

	if err := e.finalize(ctx, req, model.ApprovalCanceled, ""); err != nil {
		return nil, err
	}

	e.logger.Info("approval canceled", "approval_id", id)
	return req, nil
}

// List returns requests filtered by state ("" for all), newest first.
func (e *Engine) List(ctx context.Context, state model.ApprovalState, limit int) ([]model.ApprovalRequest, error) {
	return e.store.List(ctx, state, limit)
}

// ExpireOverdue transitions every PENDING request past its deadline to
// TIMED_OUT. Returns the number of requests expired.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	overdue, err := e.store.ListPending(ctx, e.now().UTC())
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range overdue {
		req := &overdue[i]
		if err := e.finalize(ctx, req, model.ApprovalTimedOut, ""); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// StartSweeper runs ExpireOverdue periodically until the context is
// cancelled. Returns a stop function.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := e.ExpireOverdue(ctx); err != nil {
					e.logger.Error("approval sweep failed", "error", err)
				} else if n > 0 {
					e.logger.Info("approval sweep", "expired", n)
				}
			}
		}
	}()
	return cancel
}

// finalize moves req into a terminal state, persists it, and notifies the
// approver channels of the outcome. Callers hold e.mu.
func (e *Engine) finalize(ctx context.Context, req *model.ApprovalRequest, state model.ApprovalState, rejectedBy string) error {
	now := e.now().UTC()
	req.State = state
	req.ResolvedAt = &now
	if rejectedBy != "" {
		req.RejectedBy = rejectedBy
	}

	if err := e.store.Update(ctx, req); err != nil {
		return fmt.Errorf("persist approval state %s: %w", state, err)
	}

	if e.metrics != nil {
		e.metrics.ObserveApprovalResolved(string(state))
	}

	if e.dispatcher != nil {
		e.dispatcher.Notify(ctx, req.Approvers, &notify.Message{
			Subject: fmt.Sprintf("Approval %s: %s/%s", state, req.Server, req.Method),
			Body:    fmt.Sprintf("approval %s is now %s", req.ID, state),
			Metadata: map[string]string{
				"approval_id": req.ID,
				"state":       string(state),
			},
		})
	}
	return nil
}

func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

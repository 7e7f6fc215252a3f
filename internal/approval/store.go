package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wardenmcp/warden/internal/model"
)

// Store persists approval requests. Both the SQLite-backed store and the
// in-memory store satisfy this; the engine serializes transitions, so stores
// only need crash durability, not their own locking discipline.
type Store interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	Get(ctx context.Context, id string) (*model.ApprovalRequest, error)
	Update(ctx context.Context, req *model.ApprovalRequest) error
	// ListPending returns pending requests whose deadline is before cutoff.
	ListPending(ctx context.Context, cutoff time.Time) ([]model.ApprovalRequest, error)
	// List returns requests filtered by state ("" for all), newest first.
	List(ctx context.Context, state model.ApprovalState, limit int) ([]model.ApprovalRequest, error)
}

// ---------------------------------------------------------------------------
// SQLite store
// ---------------------------------------------------------------------------

// approvalRow maps 1:1 to the approval_requests table.
type approvalRow struct {
	ID             string     `db:"id"`
	RuleName       string     `db:"rule_name"`
	Requester      string     `db:"requester"`
	Server         string     `db:"server"`
	Method         string     `db:"method"`
	ParamsJSON     string     `db:"params_json"`
	ApproversJSON  string     `db:"approvers_json"`
	RequireCount   int        `db:"require_count"`
	ApprovedByJSON string     `db:"approved_by_json"`
	RejectedBy     string     `db:"rejected_by"`
	State          string     `db:"state"`
	CreatedAt      time.Time  `db:"created_at"`
	Deadline       time.Time  `db:"deadline"`
	ResolvedAt     *time.Time `db:"resolved_at"`
}

func rowFromModel(req *model.ApprovalRequest) (approvalRow, error) {
	approvers, err := json.Marshal(orEmpty(req.Approvers))
	if err != nil {
		return approvalRow{}, fmt.Errorf("marshal approvers: %w", err)
	}
	approvedBy, err := json.Marshal(orEmpty(req.ApprovedBy))
	if err != nil {
		return approvalRow{}, fmt.Errorf("marshal approved_by: %w", err)
	}
	params := req.ParamsJSON
	if params == "" {
		raw, err := json.Marshal(req.Params)
		if err != nil {
			return approvalRow{}, fmt.Errorf("marshal params: %w", err)
		}
		params = string(raw)
	}
	return approvalRow{
		ID:             req.ID,
		RuleName:       req.RuleName,
		Requester:      req.Requester,
		Server:         req.Server,
		Method:         req.Method,
		ParamsJSON:     params,
		ApproversJSON:  string(approvers),
		RequireCount:   req.Require,
		ApprovedByJSON: string(approvedBy),
		RejectedBy:     req.RejectedBy,
		State:          string(req.State),
		CreatedAt:      req.CreatedAt,
		Deadline:       req.Deadline,
		ResolvedAt:     req.ResolvedAt,
	}, nil
}

func (r approvalRow) toModel() (model.ApprovalRequest, error) {
	var approvers, approvedBy []string
	if err := json.Unmarshal([]byte(r.ApproversJSON), &approvers); err != nil {
		return model.ApprovalRequest{}, fmt.Errorf("unmarshal approvers: %w", err)
	}
	if err := json.Unmarshal([]byte(r.ApprovedByJSON), &approvedBy); err != nil {
		return model.ApprovalRequest{}, fmt.Errorf("unmarshal approved_by: %w", err)
	}
	var params map[string]any
	if r.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(r.ParamsJSON), &params); err != nil {
			return model.ApprovalRequest{}, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return model.ApprovalRequest{
		ID:         r.ID,
		RuleName:   r.RuleName,
		Requester:  r.Requester,
		Server:     r.Server,
		Method:     r.Method,
		ParamsJSON: r.ParamsJSON,
		Approvers:  approvers,
		Require:    r.RequireCount,
		ApprovedBy: approvedBy,
		RejectedBy: r.RejectedBy,
		State:      model.ApprovalState(r.State),
		CreatedAt:  r.CreatedAt,
		Deadline:   r.Deadline,
		ResolvedAt: r.ResolvedAt,
		Params:     params,
	}, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// SQLiteStore persists approval requests in Warden's SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a store over an already-migrated database handle.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, req *model.ApprovalRequest) error {
	row, err := rowFromModel(req)
	if err != nil {
		return err
	}

	const q = `INSERT INTO approval_requests
		(id, rule_name, requester, server, method, params_json, approvers_json,
		 require_count, approved_by_json, rejected_by, state, created_at, deadline, resolved_at)
		VALUES
		(:id, :rule_name, :requester, :server, :method, :params_json, :approvers_json,
		 :require_count, :approved_by_json, :rejected_by, :state, :created_at, :deadline, :resolved_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	var row approvalRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM approval_requests WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	req, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *SQLiteStore) Update(ctx context.Context, req *model.ApprovalRequest) error {
	row, err := rowFromModel(req)
	if err != nil {
		return err
	}

	const q = `UPDATE approval_requests SET
		approved_by_json = :approved_by_json, rejected_by = :rejected_by,
		state = :state, resolved_at = :resolved_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update approval request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update approval request rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListPending(ctx context.Context, cutoff time.Time) ([]model.ApprovalRequest, error) {
	var rows []approvalRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM approval_requests WHERE state = ? AND deadline < ? ORDER BY deadline",
		string(model.ApprovalPending), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return rowsToModels(rows)
}

func (s *SQLiteStore) List(ctx context.Context, state model.ApprovalState, limit int) ([]model.ApprovalRequest, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var rows []approvalRow
	var err error
	if state == "" {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM approval_requests ORDER BY created_at DESC LIMIT ?", limit)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM approval_requests WHERE state = ? ORDER BY created_at DESC LIMIT ?",
			string(state), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return rowsToModels(rows)
}

func rowsToModels(rows []approvalRow) ([]model.ApprovalRequest, error) {
	out := make([]model.ApprovalRequest, 0, len(rows))
	for _, r := range rows {
		req, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// MemoryStore keeps approval requests in a map. Used by tests and by the
// stdio MCP mode where no data directory is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	reqs map[string]model.ApprovalRequest
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]model.ApprovalRequest)}
}

func (s *MemoryStore) Create(_ context.Context, req *model.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[req.ID] = cloneRequest(req)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.reqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRequest(&req)
	return &out, nil
}

func (s *MemoryStore) Update(_ context.Context, req *model.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reqs[req.ID]; !ok {
		return ErrNotFound
	}
	s.reqs[req.ID] = cloneRequest(req)
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context, cutoff time.Time) ([]model.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ApprovalRequest
	for _, req := range s.reqs {
		if req.State == model.ApprovalPending && req.Deadline.Before(cutoff) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, state model.ApprovalState, limit int) ([]model.ApprovalRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ApprovalRequest
	for _, req := range s.reqs {
		if state != "" && req.State != state {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRequest(req *model.ApprovalRequest) model.ApprovalRequest {
	out := *req
	out.Approvers = append([]string(nil), req.Approvers...)
	out.ApprovedBy = append([]string(nil), req.ApprovedBy...)
	return out
}

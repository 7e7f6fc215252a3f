package model

import (
	"strings"
	"time"
)

// ApprovalState is the lifecycle state of an approval request.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
	ApprovalTimedOut ApprovalState = "timed_out"
	ApprovalCanceled ApprovalState = "canceled"
)

// Terminal reports whether the state accepts no further transitions.
func (s ApprovalState) Terminal() bool {
	return s != ApprovalPending
}

// ApprovalRule gates matching operations behind human sign-off. Rules are
// evaluated in declaration order; the first matching rule wins. A rule
// matches when the operation pattern matches and every parameter predicate
// holds against the call parameters.
type ApprovalRule struct {
	Name      string            `json:"name" yaml:"name"`
	Pattern   string            `json:"pattern" yaml:"pattern"` // glob over "server/method"
	Params    map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Approvers []string          `json:"approvers" yaml:"approvers"` // channel refs, e.g. "slack:#eng-leads"
	Require   int               `json:"require" yaml:"require"`     // distinct approvals needed
	Timeout   time.Duration     `json:"timeout" yaml:"timeout"`
}

// ApprovalRequest is one instance of an approval gate, created when a rule
// matches an operation call. The rule fields are snapshotted at creation so
// later policy edits never change an in-flight request.
type ApprovalRequest struct {
	ID          string         `json:"id" db:"id"`
	RuleName    string         `json:"rule_name" db:"rule_name"`
	Requester   string         `json:"requester" db:"requester"`
	Server      string         `json:"server" db:"server"`
	Method      string         `json:"method" db:"method"`
	ParamsJSON  string         `json:"-" db:"params_json"`
	Approvers   []string       `json:"approvers"`
	Require     int            `json:"require" db:"require_count"`
	ApprovedBy  []string       `json:"approved_by"`
	RejectedBy  string         `json:"rejected_by,omitempty" db:"rejected_by"`
	State       ApprovalState  `json:"state" db:"state"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	Deadline    time.Time      `json:"deadline" db:"deadline"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
	Params      map[string]any `json:"params,omitempty"`
}

// HasApprover reports whether the given identity is in the rule's approver
// set. Approver refs carry a channel prefix ("slack:#eng-leads"); a bare
// identity matches either the full ref or the part after the prefix.
func (r *ApprovalRequest) HasApprover(id string) bool {
	for _, a := range r.Approvers {
		if a == id {
			return true
		}
		if i := strings.IndexByte(a, ':'); i >= 0 && a[i+1:] == id {
			return true
		}
	}
	return false
}

// AlreadyApproved reports whether the identity has already voted approve.
func (r *ApprovalRequest) AlreadyApproved(id string) bool {
	for _, a := range r.ApprovedBy {
		if a == id {
			return true
		}
	}
	return false
}

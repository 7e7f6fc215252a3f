package model

import "time"

// AuditRecord is an immutable record of one governance decision and its
// outcome. Records are append-only; nothing in Warden mutates or deletes a
// record inside its retention window.
type AuditRecord struct {
	ID         int64     `json:"id" db:"id"`
	RequestID  string    `json:"request_id" db:"request_id"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Principal  string    `json:"principal" db:"principal"`
	Role       string    `json:"role" db:"role"`
	Server     string    `json:"server" db:"server"`
	Method     string    `json:"method" db:"method"`
	ParamsJSON string    `json:"params_json,omitempty" db:"params_json"`
	Status     string    `json:"status" db:"status"` // success, denied, rate_limited, pending_approval, error
	ErrorKind  string    `json:"error_kind,omitempty" db:"error_kind"`
	ApprovalID string    `json:"approval_id,omitempty" db:"approval_id"`
	DurationMs float64   `json:"duration_ms" db:"duration_ms"`
	RemoteAddr string    `json:"remote_addr,omitempty" db:"remote_addr"`
}

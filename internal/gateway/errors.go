package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds recorded in audit records and metrics labels.
const (
	KindAuthentication = "authentication_error"
	KindPermission     = "permission_denied"
	KindRateLimit      = "rate_limit_exceeded"
	KindApprovalReject = "approval_rejected"
	KindApprovalExpiry = "approval_timed_out"
	KindAlreadyFinal   = "already_final"
	KindBackend        = "backend_unavailable"
	KindAuditWrite     = "audit_write_failure"
	KindUnknownBackend = "unknown_backend"
	KindInternal       = "internal"
)

// AuthenticationError reports a bad or expired credential. Not retryable;
// the caller must re-authenticate.
type AuthenticationError struct {
	Cause error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Cause)
}
func (e *AuthenticationError) Unwrap() error { return e.Cause }

// RateLimitError reports an over-quota call with the time until the window
// resets.
type RateLimitError struct {
	Subject    string
	Operation  string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s on %s: retry in %s",
		e.Subject, e.Operation, e.RetryAfter.Round(time.Second))
}

// ApprovalRejectedError reports a rejected approval gate, naming the
// rejecting approver.
type ApprovalRejectedError struct {
	ApprovalID string
	RejectedBy string
}

func (e *ApprovalRejectedError) Error() string {
	return fmt.Sprintf("approval %s rejected by %s", e.ApprovalID, e.RejectedBy)
}

// ApprovalTimedOutError reports an expired approval gate. The caller must
// resubmit the operation.
type ApprovalTimedOutError struct {
	ApprovalID string
}

func (e *ApprovalTimedOutError) Error() string {
	return fmt.Sprintf("approval %s timed out", e.ApprovalID)
}

// BackendError reports a failed or unreachable upstream. Retryable with
// backoff.
type BackendError struct {
	Backend string
	Cause   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %q unavailable: %v", e.Backend, e.Cause)
}
func (e *BackendError) Unwrap() error { return e.Cause }

// ErrUnknownBackend is returned when a call names a backend that is not
// registered.
var ErrUnknownBackend = errors.New("unknown backend")

package model

// Call statuses returned by the gateway. Every response and every audit
// record carries exactly one of these.
const (
	StatusSuccess         = "success"
	StatusPendingApproval = "pending_approval"
	StatusDenied          = "denied"
	StatusRateLimited     = "rate_limited"
	StatusError           = "error"
)

// CallResult is the envelope returned for a proxied operation call.
type CallResult struct {
	Status     string         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`
	RetryAfter string         `json:"retry_after,omitempty"`
	Error      *ErrorDetail   `json:"error,omitempty"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

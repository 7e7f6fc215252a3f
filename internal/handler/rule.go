package handler

import (
	"net/http"

	"github.com/wardenmcp/warden/internal/policy"
)

// RuleHandler serves the read-only approval-rule listing. Rules are
// declared in the policy file and loaded at startup, so there is no
// mutation surface here.
type RuleHandler struct {
	snap *policy.Snapshot
}

// NewRuleHandler creates a RuleHandler over the active policy snapshot.
func NewRuleHandler(snap *policy.Snapshot) *RuleHandler {
	return &RuleHandler{snap: snap}
}

// List returns every configured approval rule.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules := h.snap.ApprovalRules
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// Package policy holds the immutable policy snapshot Warden loads at startup:
// role permission sets, the ordered approval rule list, operation permission
// mappings, and rate-limit quotas. Components receive the snapshot explicitly;
// nothing reads policy from ambient global state.
package policy

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/wardenmcp/warden/internal/config"
	"github.com/wardenmcp/warden/internal/model"
)

// OperationPerm maps an operation pattern to the permission it requires.
type OperationPerm struct {
	Pattern    string
	Permission model.Permission
}

// QuotaRule overrides the rate-limit quota for operations matching a pattern,
// optionally scoped to a single subject.
type QuotaRule struct {
	Pattern string
	Subject string
	Quota   int
}

// Snapshot is the complete, immutable policy state for one process lifetime.
// In-flight approval requests stay bound to the snapshot they were created
// under even if the process is restarted with edited rules.
type Snapshot struct {
	Roles         map[string]model.PermissionSet
	Operations    []OperationPerm
	ApprovalRules []model.ApprovalRule
	Window        time.Duration
	DefaultQuota  int
	SubjectQuotas map[string]int
	QuotaRules    []QuotaRule
}

// Build assembles a Snapshot from the YAML configuration plus any roles
// stored in the config database. Store roles take precedence over YAML roles
// of the same name so `warden role create` wins over the static file.
func Build(ctx context.Context, cfg *config.YAMLConfig, store *config.Store) (*Snapshot, error) {
	snap := &Snapshot{
		Roles:         make(map[string]model.PermissionSet),
		SubjectQuotas: make(map[string]int),
		Window:        time.Hour,
		DefaultQuota:  cfg.RateLimits.DefaultQuota,
	}

	for _, r := range cfg.Roles {
		snap.Roles[r.Name] = model.NewPermissionSet(r.Permissions...)
	}
	if store != nil {
		roles, err := store.ListRoles(ctx)
		if err != nil {
			return nil, fmt.Errorf("load roles from store: %w", err)
		}
		for _, r := range roles {
			if !r.IsActive {
				continue
			}
			snap.Roles[r.Name] = r.PermissionSet()
		}
	}

	for _, op := range cfg.Operations {
		if op.Pattern == "" || op.Permission == "" {
			return nil, fmt.Errorf("operation mapping needs both pattern and permission (pattern=%q)", op.Pattern)
		}
		snap.Operations = append(snap.Operations, OperationPerm{
			Pattern:    op.Pattern,
			Permission: model.Permission(op.Permission),
		})
	}

	for i, r := range cfg.ApprovalRules {
		rule, err := buildRule(r)
		if err != nil {
			return nil, fmt.Errorf("approval rule %d (%s): %w", i, r.Name, err)
		}
		snap.ApprovalRules = append(snap.ApprovalRules, rule)
	}

	if cfg.RateLimits.Window != "" {
		w, err := time.ParseDuration(cfg.RateLimits.Window)
		if err != nil {
			return nil, fmt.Errorf("rate limit window: %w", err)
		}
		snap.Window = w
	}
	for subject, quota := range cfg.RateLimits.Subjects {
		snap.SubjectQuotas[subject] = quota
	}
	for _, q := range cfg.RateLimits.Operations {
		snap.QuotaRules = append(snap.QuotaRules, QuotaRule{
			Pattern: q.Pattern,
			Subject: q.Subject,
			Quota:   q.Quota,
		})
	}

	return snap, nil
}

func buildRule(r config.ApprovalRuleYAML) (model.ApprovalRule, error) {
	if r.Pattern == "" {
		return model.ApprovalRule{}, fmt.Errorf("pattern is required")
	}
	if len(r.Approvers) == 0 {
		return model.ApprovalRule{}, fmt.Errorf("at least one approver is required")
	}
	require := r.Require
	if require <= 0 {
		require = 1
	}
	timeout := time.Hour
	if r.Timeout != "" {
		t, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return model.ApprovalRule{}, fmt.Errorf("timeout: %w", err)
		}
		timeout = t
	}
	return model.ApprovalRule{
		Name:      r.Name,
		Pattern:   r.Pattern,
		Params:    r.Params,
		Approvers: r.Approvers,
		Require:   require,
		Timeout:   timeout,
	}, nil
}

// PermissionFor returns the permission required to invoke method on server.
// Configured operation mappings are consulted first (first match wins); when
// none matches, the permission is derived as "<server>:read" for read-class
// method names and "<server>:write" otherwise.
func (s *Snapshot) PermissionFor(server, method string) model.Permission {
	op := server + "/" + method
	for _, m := range s.Operations {
		if matchPattern(m.Pattern, op) {
			return m.Permission
		}
	}
	if isReadMethod(method) {
		return model.Permission(server + ":read")
	}
	return model.Permission(server + ":write")
}

// MatchApprovalRule returns the first approval rule matching the operation
// and its parameters, or nil when the operation needs no approval gate.
func (s *Snapshot) MatchApprovalRule(server, method string, params map[string]any) *model.ApprovalRule {
	op := server + "/" + method
	for i := range s.ApprovalRules {
		rule := &s.ApprovalRules[i]
		if !matchPattern(rule.Pattern, op) {
			continue
		}
		if !paramsMatch(rule.Params, params) {
			continue
		}
		return rule
	}
	return nil
}

// QuotaFor resolves the quota for one (subject, operation) pair. Operation
// quota rules are checked in order (subject-scoped rules only apply to that
// subject), then the per-subject default, then the global default. Zero means
// unlimited.
func (s *Snapshot) QuotaFor(subject, server, method string) int {
	op := server + "/" + method
	for _, q := range s.QuotaRules {
		if q.Subject != "" && q.Subject != subject {
			continue
		}
		if matchPattern(q.Pattern, op) {
			return q.Quota
		}
	}
	if quota, ok := s.SubjectQuotas[subject]; ok {
		return quota
	}
	return s.DefaultQuota
}

// matchPattern matches an operation name against a glob pattern. Patterns use
// path.Match syntax over "server/method" ("github/*", "*/delete_*"). A bare
// "*" matches everything including the slash.
func matchPattern(pattern, op string) bool {
	if pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, op)
	return err == nil && ok
}

// paramsMatch checks every rule predicate against the call parameters with
// string equality. A missing parameter fails the predicate.
func paramsMatch(predicates map[string]string, params map[string]any) bool {
	for key, want := range predicates {
		got, ok := params[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

func isReadMethod(method string) bool {
	for _, prefix := range []string{"get_", "list_", "search_", "read_", "describe_", "query_"} {
		if strings.HasPrefix(method, prefix) {
			return true
		}
	}
	return false
}

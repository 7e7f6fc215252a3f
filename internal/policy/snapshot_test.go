package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wardenmcp/warden/internal/config"
	"github.com/wardenmcp/warden/internal/model"
)

func TestBuildFromYAML(t *testing.T) {
	cfg := &config.YAMLConfig{
		Roles: []config.RoleYAML{
			{Name: "viewer", Permissions: []string{"*:read"}},
			{Name: "developer", Permissions: []string{"github:read", "github:write"}},
		},
		Operations: []config.OperationYAML{
			{Pattern: "github/delete_*", Permission: "github:admin"},
		},
		ApprovalRules: []config.ApprovalRuleYAML{
			{Name: "prod-deploys", Pattern: "deploy/*", Approvers: []string{"slack:#eng-leads"}, Require: 2, Timeout: "30m"},
		},
		RateLimits: config.RateLimitYAML{
			Window:       "15m",
			DefaultQuota: 100,
			Subjects:     map[string]int{"ci-bot": 1000},
		},
	}

	snap, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(snap.Roles) != 2 {
		t.Errorf("got %d roles, want 2", len(snap.Roles))
	}
	if snap.Window != 15*time.Minute {
		t.Errorf("Window = %v, want 15m", snap.Window)
	}
	if snap.DefaultQuota != 100 {
		t.Errorf("DefaultQuota = %d, want 100", snap.DefaultQuota)
	}
	if len(snap.ApprovalRules) != 1 || snap.ApprovalRules[0].Timeout != 30*time.Minute {
		t.Errorf("approval rules not built: %+v", snap.ApprovalRules)
	}
}

func TestBuildRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.YAMLConfig
	}{
		{
			"operation without permission",
			&config.YAMLConfig{Operations: []config.OperationYAML{{Pattern: "github/*"}}},
		},
		{
			"approval rule without approvers",
			&config.YAMLConfig{ApprovalRules: []config.ApprovalRuleYAML{{Name: "r", Pattern: "a/*"}}},
		},
		{
			"approval rule without pattern",
			&config.YAMLConfig{ApprovalRules: []config.ApprovalRuleYAML{{Name: "r", Approvers: []string{"x"}}}},
		},
		{
			"unparseable window",
			&config.YAMLConfig{RateLimits: config.RateLimitYAML{Window: "soon"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(context.Background(), tt.cfg, nil); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestBuildRuleDefaults(t *testing.T) {
	cfg := &config.YAMLConfig{
		ApprovalRules: []config.ApprovalRuleYAML{
			{Name: "r", Pattern: "a/*", Approvers: []string{"x"}},
		},
	}
	snap, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rule := snap.ApprovalRules[0]
	if rule.Require != 1 {
		t.Errorf("Require = %d, want default 1", rule.Require)
	}
	if rule.Timeout != time.Hour {
		t.Errorf("Timeout = %v, want default 1h", rule.Timeout)
	}
}

func TestAuthorize(t *testing.T) {
	snap := &Snapshot{
		Roles: map[string]model.PermissionSet{
			"viewer": model.NewPermissionSet("*:read"),
			"admin":  model.NewPermissionSet("*"),
		},
	}

	if err := snap.Authorize(model.Principal{ID: "a", Role: "viewer"}, "github:read"); err != nil {
		t.Errorf("viewer read: %v", err)
	}

	err := snap.Authorize(model.Principal{ID: "a", Role: "viewer"}, "github:write")
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("viewer write: got %v, want PermissionDeniedError", err)
	}
	if denied.Role != "viewer" || denied.Permission != "github:write" {
		t.Errorf("error fields: %+v", denied)
	}

	err = snap.Authorize(model.Principal{ID: "a", Role: "ghost"}, "github:read")
	var unknown *UnknownRoleError
	if !errors.As(err, &unknown) {
		t.Fatalf("unknown role: got %v, want UnknownRoleError", err)
	}

	if err := snap.Authorize(model.Principal{ID: "a", Role: "admin"}, "anything:at_all"); err != nil {
		t.Errorf("wildcard role: %v", err)
	}
}

func TestPermissionFor(t *testing.T) {
	snap := &Snapshot{
		Operations: []OperationPerm{
			{Pattern: "github/delete_*", Permission: "github:admin"},
			{Pattern: "github/*", Permission: "github:use"},
		},
	}

	tests := []struct {
		server, method string
		want           model.Permission
	}{
		{"github", "delete_repo", "github:admin"}, // first match wins
		{"github", "create_issue", "github:use"},
		{"jira", "get_issue", "jira:read"},    // derived read
		{"jira", "list_boards", "jira:read"},  // derived read
		{"jira", "update_issue", "jira:write"}, // derived write
		{"jira", "getting", "jira:write"},      // prefix needs the underscore
	}
	for _, tt := range tests {
		if got := snap.PermissionFor(tt.server, tt.method); got != tt.want {
			t.Errorf("PermissionFor(%s, %s) = %q, want %q", tt.server, tt.method, got, tt.want)
		}
	}
}

func TestMatchApprovalRule(t *testing.T) {
	snap := &Snapshot{
		ApprovalRules: []model.ApprovalRule{
			{Name: "prod-only", Pattern: "deploy/*", Params: map[string]string{"env": "prod"}, Approvers: []string{"a"}, Require: 1},
			{Name: "all-deploys", Pattern: "deploy/*", Approvers: []string{"a"}, Require: 1},
			{Name: "everything", Pattern: "*", Params: map[string]string{"force": "true"}, Approvers: []string{"a"}, Require: 1},
		},
	}

	tests := []struct {
		name           string
		server, method string
		params         map[string]any
		wantRule       string
	}{
		{"param predicate selects first rule", "deploy", "rollout", map[string]any{"env": "prod"}, "prod-only"},
		{"param mismatch falls through to next rule", "deploy", "rollout", map[string]any{"env": "staging"}, "all-deploys"},
		{"missing param fails the predicate", "deploy", "rollout", nil, "all-deploys"},
		{"bare star matches across the slash", "github", "merge", map[string]any{"force": true}, "everything"},
		{"no rule matches", "github", "merge", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := snap.MatchApprovalRule(tt.server, tt.method, tt.params)
			got := ""
			if rule != nil {
				got = rule.Name
			}
			if got != tt.wantRule {
				t.Errorf("matched %q, want %q", got, tt.wantRule)
			}
		})
	}
}

func TestQuotaFor(t *testing.T) {
	snap := &Snapshot{
		DefaultQuota: 100,
		SubjectQuotas: map[string]int{
			"ci-bot": 1000,
			"intern": 10,
		},
		QuotaRules: []QuotaRule{
			{Pattern: "github/delete_*", Quota: 5},
			{Pattern: "jira/*", Subject: "intern", Quota: 2},
		},
	}

	tests := []struct {
		subject, server, method string
		want                    int
	}{
		{"alice", "github", "delete_repo", 5},     // operation rule
		{"intern", "jira", "create_issue", 2},     // subject-scoped rule
		{"alice", "jira", "create_issue", 100},    // scoped rule skipped for others
		{"ci-bot", "github", "create_issue", 1000}, // subject default
		{"alice", "github", "create_issue", 100},  // global default
	}
	for _, tt := range tests {
		if got := snap.QuotaFor(tt.subject, tt.server, tt.method); got != tt.want {
			t.Errorf("QuotaFor(%s, %s/%s) = %d, want %d", tt.subject, tt.server, tt.method, got, tt.want)
		}
	}
}

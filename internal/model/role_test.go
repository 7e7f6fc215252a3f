package model

import "testing"

func TestPermissionSetHas(t *testing.T) {
	tests := []struct {
		name  string
		perms []string
		check Permission
		want  bool
	}{
		{"exact match", []string{"github:read", "github:write"}, "github:read", true},
		{"missing token", []string{"github:read"}, "github:write", false},
		{"full wildcard grants everything", []string{"*"}, "anything:at_all", true},
		{"action wildcard matches any server", []string{"*:read"}, "jira:read", true},
		{"action wildcard does not match other actions", []string{"*:read"}, "jira:write", false},
		{"action wildcard needs a colon in the checked token", []string{"*:read"}, "read", false},
		{"no prefix semantics", []string{"github"}, "github:read", false},
		{"empty set", nil, "github:read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewPermissionSet(tt.perms...)
			if got := set.Has(tt.check); got != tt.want {
				t.Errorf("Has(%q) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestRolePermissionSet(t *testing.T) {
	r := Role{Name: "developer", Permissions: []string{"github:read", "github:write"}}
	set := r.PermissionSet()
	if !set.Has("github:write") {
		t.Error("role set should grant github:write")
	}
	if set.Has("jira:read") {
		t.Error("role set should not grant jira:read")
	}
}

func TestPrincipalSubject(t *testing.T) {
	p := Principal{ID: "alice@example.com"}
	if got := p.Subject(); got != "alice@example.com" {
		t.Errorf("Subject = %q, want individual identity", got)
	}

	p.Team = "platform"
	if got := p.Subject(); got != "platform" {
		t.Errorf("Subject = %q, want team when set", got)
	}
}

package policy

import (
	"fmt"

	"github.com/wardenmcp/warden/internal/model"
)

// PermissionDeniedError reports a failed RBAC check, naming the role and the
// missing permission.
type PermissionDeniedError struct {
	Role       string
	Permission model.Permission
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Permission)
}

// UnknownRoleError reports a principal whose role is not in the snapshot.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q", e.Role)
}

// Authorize decides whether the principal's role grants the permission.
// Pure function of the snapshot: deterministic, no side effects, no external
// calls.
func (s *Snapshot) Authorize(p model.Principal, perm model.Permission) error {
	set, ok := s.Roles[p.Role]
	if !ok {
		return &UnknownRoleError{Role: p.Role}
	}
	if !set.Has(perm) {
		return &PermissionDeniedError{Role: p.Role, Permission: perm}
	}
	return nil
}

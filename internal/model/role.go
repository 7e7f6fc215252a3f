package model

import (
	"strings"
	"time"
)

// Permission is a typed permission token such as "issues:write" or the
// wildcard "*". Permissions are compared by exact match; there is no
// substring or prefix semantics.
type Permission string

// Wildcard grants every permission.
const Wildcard Permission = "*"

// PermissionSet is the set of permissions held by a role.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a PermissionSet from permission strings.
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[Permission(p)] = struct{}{}
	}
	return set
}

// Has reports whether the set grants the permission. A permission is granted
// by an exact token, by the full wildcard "*", or by an action wildcard
// "*:<action>" that grants the action on every server (e.g. "*:read" grants
// "github:read").
func (s PermissionSet) Has(p Permission) bool {
	if _, ok := s[Wildcard]; ok {
		return true
	}
	if _, ok := s[p]; ok {
		return true
	}
	if i := strings.IndexByte(string(p), ':'); i >= 0 {
		if _, ok := s[Permission("*:"+string(p)[i+1:])]; ok {
			return true
		}
	}
	return false
}

// List returns the permissions as strings, for serialization.
func (s PermissionSet) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	return out
}

// Role defines an RBAC role that groups a set of permissions together.
// API keys are bound to roles to determine what operations they may invoke
// through the gateway.
type Role struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PermissionSet returns the role's permissions as a set for membership checks.
func (r *Role) PermissionSet() PermissionSet {
	return NewPermissionSet(r.Permissions...)
}

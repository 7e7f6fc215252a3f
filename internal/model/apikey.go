package model

import "time"

// APIKey represents an API key used to authenticate gateway callers.
// The raw key is never stored; only a SHA-256 hash and a short prefix for
// identification are persisted.
type APIKey struct {
	ID        int64      `json:"id" db:"id"`
	KeyHash   string     `json:"-" db:"key_hash"`             // SHA-256 hash, never expose
	KeyPrefix string     `json:"key_prefix" db:"key_prefix"`  // Short prefix for identification
	Label     string     `json:"label" db:"label"`
	UserID    string     `json:"user_id" db:"user_id"`
	RoleID    int64      `json:"role_id" db:"role_id"`
	Team      string     `json:"team" db:"team"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty" db:"last_used"`
}

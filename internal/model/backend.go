package model

import "time"

// BackendConfig holds the configuration for one upstream protocol server the
// gateway forwards operations to. Each backend is addressed by name in the
// call interface ("server" field).
type BackendConfig struct {
	ID        int64         `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Label     string        `json:"label" db:"label"`
	Kind      string        `json:"kind" db:"kind"` // http, mcp, static
	URL       string        `json:"url" db:"url"`
	Timeout   time.Duration `json:"timeout" db:"-"`
	IsActive  bool          `json:"is_active" db:"is_active"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// Backend kinds.
const (
	BackendHTTP   = "http"
	BackendMCP    = "mcp"
	BackendStatic = "static"
)

// DefaultBackendTimeout bounds a single dispatch to an upstream server.
const DefaultBackendTimeout = 30 * time.Second

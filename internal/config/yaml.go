package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level warden configuration file.
type YAMLConfig struct {
	Server        ServerConfig       `yaml:"server"`
	Auth          AuthConfig         `yaml:"auth"`
	Backends      []BackendYAML      `yaml:"backends"`
	Roles         []RoleYAML         `yaml:"roles"`
	Operations    []OperationYAML    `yaml:"operations"`
	ApprovalRules []ApprovalRuleYAML `yaml:"approval_rules"`
	RateLimits    RateLimitYAML      `yaml:"rate_limits"`
	Audit         AuditYAML          `yaml:"audit"`
	Notifications []ChannelYAML      `yaml:"notifications"`
	MCP           MCPConfig          `yaml:"mcp"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	MaxBodySize     string     `yaml:"max_body_size"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	RequestsPerMin  int        `yaml:"requests_per_minute"` // per-IP flood limit, 0 disables
	CORS            CORSConfig `yaml:"cors"`
	TLS             TLSConfig  `yaml:"tls"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// TLSConfig controls TLS termination at the server level.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	JWTExpiry    string `yaml:"jwt_expiry"`
	APIKeyHeader string `yaml:"api_key_header"`
}

// BackendYAML defines an upstream protocol server in the configuration file.
type BackendYAML struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"` // http, mcp, static
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// RoleYAML defines an RBAC role in the configuration file.
type RoleYAML struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// OperationYAML maps an operation pattern ("server/method" glob) to the
// permission required to invoke it. Unmatched operations fall back to the
// derived "<server>:<verb-class>" permission.
type OperationYAML struct {
	Pattern    string `yaml:"pattern"`
	Permission string `yaml:"permission"`
}

// ApprovalRuleYAML defines one approval gate in the configuration file.
// Rules are evaluated in file order; the first match wins.
type ApprovalRuleYAML struct {
	Name      string            `yaml:"name"`
	Pattern   string            `yaml:"pattern"`
	Params    map[string]string `yaml:"params,omitempty"`
	Approvers []string          `yaml:"approvers"`
	Require   int               `yaml:"require"`
	Timeout   string            `yaml:"timeout"`
}

// RateLimitYAML controls the policy rate limiter.
type RateLimitYAML struct {
	Window       string               `yaml:"window"`        // fixed window length, default 1h
	DefaultQuota int                  `yaml:"default_quota"` // 0 = unlimited
	Subjects     map[string]int       `yaml:"subjects"`      // per-subject default quota
	Operations   []OperationQuotaYAML `yaml:"operations"`    // per-operation overrides
}

// OperationQuotaYAML overrides the quota for operations matching a pattern,
// optionally scoped to one subject.
type OperationQuotaYAML struct {
	Pattern string `yaml:"pattern"`
	Subject string `yaml:"subject,omitempty"`
	Quota   int    `yaml:"quota"`
}

// AuditYAML controls audit storage and retention.
type AuditYAML struct {
	Storage       string `yaml:"storage"` // sqlite (default), postgres
	DSN           string `yaml:"dsn"`     // postgres only
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"` // cron spec, default "0 3 * * *"
}

// ChannelYAML defines a notification channel approvers are reached through.
type ChannelYAML struct {
	Name       string `yaml:"name"` // referenced by approval rule approvers, e.g. "slack:#eng-leads"
	Type       string `yaml:"type"` // slack, email, log
	WebhookURL string `yaml:"webhook_url,omitempty"`
	SMTPServer string `yaml:"smtp_server,omitempty"`
	SMTPFrom   string `yaml:"smtp_from,omitempty"`
	To         string `yaml:"to,omitempty"`
}

// MCPConfig controls the MCP (Model Context Protocol) surface.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"` // stdio, http
	HTTPAddr  string `yaml:"http_addr"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "10MB",
			ShutdownTimeout: "30s",
			RequestsPerMin:  600,
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "DELETE"},
			},
		},
		Auth: AuthConfig{
			JWTExpiry:    "1h",
			APIKeyHeader: "X-API-Key",
		},
		Roles: []RoleYAML{
			{Name: "viewer", Description: "Read-only access", Permissions: []string{"*:read"}},
			{Name: "developer", Description: "Read and write access", Permissions: []string{"*:read", "*:write"}},
			{Name: "admin", Description: "Full access", Permissions: []string{"*"}},
		},
		RateLimits: RateLimitYAML{
			Window:       "1h",
			DefaultQuota: 1000,
		},
		Audit: AuditYAML{
			Storage:       "sqlite",
			RetentionDays: 365,
			PruneSchedule: "0 3 * * *",
		},
		MCP: MCPConfig{
			Enabled:   true,
			Transport: "stdio",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ParseSize converts a human-readable size like "10MB" or "512KB" to bytes.
// A bare number is taken as bytes. An empty string parses to zero.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, nil
	}

	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult, s = 1<<30, strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult, s = 1<<20, strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult, s = 1<<10, strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size: negative value %d", n)
	}
	return n * mult, nil
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/observability"
)

// ErrAuthNotConfigured indicates authentication is enabled but the provider
// settings are incomplete. Callers degrade to open mode instead of crashing.
var ErrAuthNotConfigured = errors.New("authentication not configured")

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication configuration
	Auth AuthConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// BaseURL is the externally visible URL of the server, used to build
	// absolute redirect URLs.
	BaseURL string
}

// AuthConfig holds authentication and authorization configuration
type AuthConfig struct {
	// Enabled turns the auth subsystem on. When false every request is
	// served without authentication.
	Enabled bool

	// Provider selects the identity provider adapter ("github" or "oidc").
	Provider string

	// OAuth2 client credentials
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// IssuerURL is required for the oidc provider.
	IssuerURL string

	// DefaultRole is assigned to first-time users with no role override.
	DefaultRole auth.Role

	// SessionTimeout is the idle window after which a session expires.
	SessionTimeout time.Duration

	// UsersFile is the JSON file backing the user registry.
	UsersFile string

	// RoleAssignments maps usernames or emails to role names. Populated
	// from inline JSON or from RoleAssignmentsFile.
	RoleAssignments map[string]string

	// RoleAssignmentsFile, when set, is watched for changes at runtime.
	RoleAssignmentsFile string

	// PublicPaths extends the built-in unauthenticated path allowlist.
	PublicPaths []string

	// AuditLogFile, when set, receives an append-only JSON-lines trail of
	// logins, logouts, and admin actions.
	AuditLogFile string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	authCfg, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          authCfg,
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FLOWDECK_HOST", "0.0.0.0"),
		Port:            getEnv("FLOWDECK_PORT", "3000"),
		ReadTimeout:     getEnvDuration("FLOWDECK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FLOWDECK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FLOWDECK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FLOWDECK_SHUTDOWN_TIMEOUT", 30*time.Second),
		BaseURL:         getEnv("FLOWDECK_BASE_URL", "http://localhost:3000"),
	}
}

// loadAuthConfig loads authentication configuration from environment
func loadAuthConfig() (AuthConfig, error) {
	cfg := AuthConfig{
		Enabled:             getEnvBool("FLOWDECK_AUTH_ENABLED", false),
		Provider:            getEnv("FLOWDECK_AUTH_PROVIDER", "github"),
		ClientID:            getEnv("FLOWDECK_AUTH_CLIENT_ID", ""),
		ClientSecret:        getEnv("FLOWDECK_AUTH_CLIENT_SECRET", ""),
		RedirectURL:         getEnv("FLOWDECK_AUTH_REDIRECT_URL", ""),
		IssuerURL:           getEnv("FLOWDECK_AUTH_ISSUER_URL", ""),
		SessionTimeout:      getEnvDuration("FLOWDECK_AUTH_SESSION_TIMEOUT", 24*time.Hour),
		UsersFile:           getEnv("FLOWDECK_AUTH_USERS_FILE", "flowdeck_users.json"),
		RoleAssignmentsFile: getEnv("FLOWDECK_AUTH_ROLE_ASSIGNMENTS_FILE", ""),
		AuditLogFile:        getEnv("FLOWDECK_AUTH_AUDIT_LOG", ""),
	}

	role, err := auth.ParseRole(getEnv("FLOWDECK_AUTH_DEFAULT_ROLE", "viewer"))
	if err != nil {
		return cfg, fmt.Errorf("invalid FLOWDECK_AUTH_DEFAULT_ROLE: %w", err)
	}
	cfg.DefaultRole = role

	if scopes := getEnv("FLOWDECK_AUTH_SCOPES", ""); scopes != "" {
		cfg.Scopes = splitAndTrim(scopes)
	}
	if paths := getEnv("FLOWDECK_AUTH_PUBLIC_PATHS", ""); paths != "" {
		cfg.PublicPaths = splitAndTrim(paths)
	}

	assignments, err := loadRoleAssignments(cfg.RoleAssignmentsFile)
	if err != nil {
		return cfg, err
	}
	cfg.RoleAssignments = assignments

	return cfg, nil
}

// loadRoleAssignments merges the inline JSON env value with the assignments
// file, file entries winning on conflict.
func loadRoleAssignments(path string) (map[string]string, error) {
	assignments := make(map[string]string)

	if inline := getEnv("FLOWDECK_AUTH_ROLE_ASSIGNMENTS", ""); inline != "" {
		if err := json.Unmarshal([]byte(inline), &assignments); err != nil {
			return nil, fmt.Errorf("invalid FLOWDECK_AUTH_ROLE_ASSIGNMENTS: %w", err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return assignments, nil
			}
			return nil, fmt.Errorf("reading role assignments file: %w", err)
		}
		fromFile := make(map[string]string)
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parsing role assignments file %s: %w", path, err)
		}
		for k, v := range fromFile {
			assignments[k] = v
		}
	}

	return assignments, nil
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("FLOWDECK_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("FLOWDECK_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if err := c.Auth.Validate(); err != nil && !errors.Is(err, ErrAuthNotConfigured) {
		return err
	}
	return nil
}

// Validate checks the auth configuration. It returns an error wrapping
// ErrAuthNotConfigured when auth is enabled but provider settings are
// missing, so callers can tell "incomplete" apart from "invalid".
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Provider {
	case "github", "oidc":
	default:
		return fmt.Errorf("invalid auth provider: %q (must be github or oidc)", c.Provider)
	}

	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("%w: client ID and secret are required for provider %s",
			ErrAuthNotConfigured, c.Provider)
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("%w: redirect URL is required", ErrAuthNotConfigured)
	}
	if c.Provider == "oidc" && c.IssuerURL == "" {
		return fmt.Errorf("%w: issuer URL is required for the oidc provider", ErrAuthNotConfigured)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %s", c.SessionTimeout)
	}
	return nil
}

// splitAndTrim splits a comma-separated list, dropping empty entries
func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

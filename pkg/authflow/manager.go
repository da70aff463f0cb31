package authflow

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flowdeck/flowdeck/pkg/audit"
	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/config"
	"github.com/flowdeck/flowdeck/pkg/middleware"
	"github.com/flowdeck/flowdeck/pkg/observability"
	"github.com/flowdeck/flowdeck/pkg/session"
	"github.com/flowdeck/flowdeck/pkg/sso"
	"github.com/flowdeck/flowdeck/pkg/userstore"
)

// LoginPath is where unauthenticated browsers are sent.
const LoginPath = "/auth/login"

// Manager wires the authentication subsystem together. A disabled manager
// is still usable: its middleware passes every request through and its
// routes report authentication as disabled.
type Manager struct {
	cfg      config.AuthConfig
	provider sso.Provider
	sessions *session.Store
	users    *userstore.Store
	states   *sso.StateStore
	gateway  *middleware.AuthMiddleware
	limiter  *middleware.LoginRateLimiter
	metrics  *observability.AuthMetrics
	watcher  *userstore.Watcher
	trail    audit.Trail
	logger   *observability.Logger
	enabled  bool
}

// Stats is a point-in-time snapshot of the subsystem.
type Stats struct {
	Enabled        bool              `json:"enabled"`
	Provider       string            `json:"provider,omitempty"`
	ActiveSessions int               `json:"active_sessions"`
	PendingStates  int               `json:"pending_states"`
	UserCount      int               `json:"user_count"`
	UsersByRole    map[auth.Role]int `json:"users_by_role"`
}

// NewManager builds the subsystem from configuration. When authentication
// is enabled but the provider settings are incomplete, it returns a
// disabled manager together with an error wrapping
// config.ErrAuthNotConfigured so the caller can log and keep serving.
func NewManager(ctx context.Context, cfg config.AuthConfig, logger *observability.Logger) (*Manager, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	m := &Manager{cfg: cfg, logger: logger, trail: audit.NopTrail{}}

	if !cfg.Enabled {
		return m, nil
	}
	if err := cfg.Validate(); err != nil {
		return m, fmt.Errorf("building auth manager: %w", err)
	}

	provider, err := sso.NewProvider(ctx, &sso.Config{
		Provider:     cfg.Provider,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		IssuerURL:    cfg.IssuerURL,
	})
	if err != nil {
		return m, fmt.Errorf("building identity provider: %w", err)
	}

	users, err := userstore.NewStore(cfg.UsersFile, cfg.RoleAssignments, logger)
	if err != nil {
		return m, fmt.Errorf("opening user registry: %w", err)
	}

	sessions := session.NewStore(cfg.SessionTimeout)

	m.provider = provider
	m.users = users
	m.sessions = sessions
	m.states = sso.NewStateStore()
	m.metrics = observability.NewAuthMetrics(func() float64 {
		return float64(sessions.ActiveCount())
	})
	m.limiter = middleware.NewLoginRateLimiter(nil)
	m.gateway = middleware.NewAuthMiddleware(
		sessions, users, LoginPath, cfg.PublicPaths, logger, m.metrics)
	m.enabled = true

	if cfg.AuditLogFile != "" {
		trail, err := audit.NewFileTrail(audit.FileTrailConfig{Path: cfg.AuditLogFile})
		if err != nil {
			return m, fmt.Errorf("opening audit log: %w", err)
		}
		m.trail = trail
	}

	if cfg.RoleAssignmentsFile != "" {
		watcher, err := userstore.NewWatcher(users, cfg.RoleAssignmentsFile, logger)
		if err != nil {
			logger.WithError(err).Warn("role assignments file will not be watched")
		} else {
			m.watcher = watcher
		}
	}

	return m, nil
}

// Enabled reports whether authentication is being enforced.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Provider returns the configured identity provider, or nil when disabled.
func (m *Manager) Provider() sso.Provider {
	return m.provider
}

// Middleware returns the gateway middleware, or a passthrough when
// authentication is disabled.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	if !m.enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return m.gateway.Handler
}

// MetricsHandler exposes the subsystem's Prometheus registry, or nil when
// authentication is disabled.
func (m *Manager) MetricsHandler() http.Handler {
	if m.metrics == nil {
		return nil
	}
	return m.metrics.Handler()
}

// RegisterRoutes mounts the /auth/* surface on the router.
func (m *Manager) RegisterRoutes(r *mux.Router) {
	newHandlers(m).RegisterRoutes(r)
}

// Stats snapshots the subsystem state.
func (m *Manager) Stats() Stats {
	if !m.enabled {
		return Stats{Enabled: false}
	}
	return Stats{
		Enabled:        true,
		Provider:       m.provider.Name(),
		ActiveSessions: m.sessions.ActiveCount(),
		PendingStates:  m.states.PendingCount(),
		UserCount:      len(m.users.List()),
		UsersByRole:    m.users.CountByRole(),
	}
}

// Close releases background resources. Safe on a disabled manager.
func (m *Manager) Close() error {
	var firstErr error
	if m.watcher != nil {
		firstErr = m.watcher.Close()
	}
	if m.trail != nil {
		if err := m.trail.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package middleware

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/contextkeys"
	"github.com/flowdeck/flowdeck/pkg/httputil"
	"github.com/flowdeck/flowdeck/pkg/observability"
	"github.com/flowdeck/flowdeck/pkg/session"
	"github.com/flowdeck/flowdeck/pkg/userstore"
)

// SessionCookieName is the cookie carrying the session identifier.
const SessionCookieName = "flowdeck_session"

// sweepInterval is how many admitted requests pass between opportunistic
// expired-session sweeps.
const sweepInterval = 64

// defaultPublicPaths never require authentication.
var defaultPublicPaths = []string{
	"/auth/login",
	"/auth/callback",
	"/auth/logout",
	"/auth/status",
	"/server_info",
	"/metrics",
	"/favicon.ico",
	"/favicon.png",
	"/favicon.svg",
	"/robots.txt",
}

// publicPrefixes are path fragments that mark static assets as public.
var publicPrefixes = []string{
	"/static/",
	"/vendor/",
}

// publicSuffixes are file extensions served without authentication.
var publicSuffixes = []string{
	".css", ".js", ".map",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".woff", ".woff2", ".ttf",
}

// AuthMiddleware enforces authentication on protected paths.
type AuthMiddleware struct {
	sessions *session.Store
	users    *userstore.Store
	loginURL string
	public   map[string]struct{}
	logger   *observability.Logger
	metrics  *observability.AuthMetrics

	admitted atomic.Uint64
}

// NewAuthMiddleware creates the gateway. extraPublicPaths extends the
// built-in allowlist with deployment-specific paths. metrics may be nil.
func NewAuthMiddleware(
	sessions *session.Store,
	users *userstore.Store,
	loginURL string,
	extraPublicPaths []string,
	logger *observability.Logger,
	metrics *observability.AuthMetrics,
) *AuthMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}

	public := make(map[string]struct{})
	for _, p := range defaultPublicPaths {
		public[p] = struct{}{}
	}
	for _, p := range extraPublicPaths {
		public[p] = struct{}{}
	}

	return &AuthMiddleware{
		sessions: sessions,
		users:    users,
		loginURL: loginURL,
		public:   public,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handler wraps an HTTP handler with authentication enforcement.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isPublicPath(r.URL.Path) {
			// Public paths still get the identity attached when one
			// resolves, so endpoints like /auth/status can report it.
			if user := m.ResolveIdentity(r); user != nil {
				r = r.WithContext(contextkeys.WithIdentity(r.Context(), user))
			}
			next.ServeHTTP(w, r)
			return
		}

		user := m.ResolveIdentity(r)
		if user == nil {
			m.reject(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithIdentity(r.Context(), user)))

		// Amortized cleanup; correctness never depends on it running.
		if m.admitted.Add(1)%sweepInterval == 0 {
			if swept := m.sessions.SweepExpired(); swept > 0 && m.metrics != nil {
				m.metrics.SessionsSweptTotal.Add(float64(swept))
			}
		}
	})
}

// isPublicPath checks the exact-match allowlist, then asset patterns.
func (m *AuthMiddleware) isPublicPath(path string) bool {
	if _, ok := m.public[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.Contains(path, prefix) {
			return true
		}
	}
	for _, suffix := range publicSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// ResolveIdentity returns the active user bound to the request's session
// cookie, or nil. A session whose user no longer exists or has been
// deactivated is proactively invalidated, so a mid-session deactivation
// takes effect on the next request.
func (m *AuthMiddleware) ResolveIdentity(r *http.Request) *auth.User {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	sessionUser := m.sessions.Resolve(cookie.Value)
	if sessionUser == nil {
		return nil
	}

	stored := m.users.Get(sessionUser.Username)
	if stored == nil || !stored.IsActive {
		m.sessions.Invalidate(cookie.Value)
		m.logger.WithField("username", sessionUser.Username).
			Info("invalidated session for missing or inactive user")
		return nil
	}
	return stored
}

// reject answers an unauthenticated request on a protected path.
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request) {
	if wantsJSONResponse(r) {
		if m.metrics != nil {
			m.metrics.RequestsRejected.WithLabelValues("401").Inc()
		}
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error":     "Authentication required",
			"login_url": m.loginURL,
		})
		return
	}

	if m.metrics != nil {
		m.metrics.RequestsRejected.WithLabelValues("302").Inc()
	}
	http.Redirect(w, r, m.loginURL, http.StatusFound)
}

// wantsJSONResponse reports whether the request is API/GraphQL-shaped.
func wantsJSONResponse(r *http.Request) bool {
	path := r.URL.Path
	if strings.HasPrefix(path, "/graphql") || strings.HasPrefix(path, "/api/") {
		return true
	}
	return httputil.AcceptsJSON(r)
}

// GetIdentity extracts the authenticated user from a request, or nil.
func GetIdentity(r *http.Request) *auth.User {
	return contextkeys.Identity(r.Context())
}

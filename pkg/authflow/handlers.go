package authflow

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/flowdeck/flowdeck/pkg/audit"
	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/httputil"
	"github.com/flowdeck/flowdeck/pkg/middleware"
	"github.com/flowdeck/flowdeck/pkg/rbac"
	"github.com/flowdeck/flowdeck/pkg/sso"
)

// StateCookieName carries the browser-side copy of the CSRF state.
const StateCookieName = "flowdeck_oauth_state"

// handlers implements the /auth/* HTTP surface.
type handlers struct {
	m *Manager
}

func newHandlers(m *Manager) *handlers {
	return &handlers{m: m}
}

// RegisterRoutes mounts the auth routes. A disabled manager only serves
// /auth/status so clients can discover that authentication is off.
func (h *handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/status", h.handleStatus).Methods("GET")
	if !h.m.enabled {
		return
	}

	limited := h.m.limiter.Handler
	r.Handle("/auth/login", limited(http.HandlerFunc(h.handleLogin))).Methods("GET")
	r.Handle("/auth/callback", limited(http.HandlerFunc(h.handleCallback))).Methods("GET")
	r.HandleFunc("/auth/logout", h.handleLogout).Methods("GET", "POST")
	r.HandleFunc("/auth/user", h.handleUser).Methods("GET")

	admin := rbac.RequirePermission(rbac.PermManageUsers)
	r.Handle("/auth/admin/users", admin(http.HandlerFunc(h.handleListUsers))).Methods("GET")
	r.Handle("/auth/admin/users/{username}/role", admin(http.HandlerFunc(h.handleSetRole))).Methods("PUT")
	r.Handle("/auth/admin/users/{username}", admin(http.HandlerFunc(h.handleDeleteUser))).Methods("DELETE")
	r.Handle("/auth/admin/stats", admin(http.HandlerFunc(h.handleAdminStats))).Methods("GET")
}

// handleLogin handles GET /auth/login
// Issues a CSRF state, mirrors it into a short-lived cookie, and renders
// the login page. ?direct=true skips the page and redirects straight to
// the provider.
func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if user := h.m.gateway.ResolveIdentity(r); user != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	state, err := h.m.states.Issue()
	if err != nil {
		h.m.logger.WithError(err).Error("failed to issue login state")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(sso.StateWindow.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	authURL := h.m.provider.AuthorizationURL(state)
	if r.URL.Query().Get("direct") == "true" {
		http.Redirect(w, r, authURL, http.StatusFound)
		return
	}
	renderLoginPage(w, h.m.provider.Name(), authURL)
}

// handleCallback handles GET /auth/callback
// Validates the CSRF state against both the server-side store and the
// browser cookie, exchanges the code, provisions or refreshes the user,
// and establishes a session.
func (h *handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := h.m.provider.Name()

	// The state cookie is single-use regardless of outcome.
	clearCookie(w, StateCookieName, "/auth")

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.loginFailure(w, provider, "state", "invalid state")
		return
	}

	cookie, err := r.Cookie(StateCookieName)
	if err != nil || cookie.Value != state {
		h.loginFailure(w, provider, "state", "invalid state")
		return
	}

	if !h.m.states.ValidateAndConsume(state) {
		h.loginFailure(w, provider, "state", "invalid state")
		return
	}

	token, err := h.m.provider.ExchangeCode(ctx, code)
	if err != nil {
		h.m.logger.WithError(err).WithField("provider", provider).
			Warn("authorization code exchange failed")
		h.exchangeFailure(w, provider, err)
		return
	}

	profile, err := h.m.provider.FetchProfile(ctx, token)
	if err != nil {
		h.m.logger.WithError(err).WithField("provider", provider).
			Warn("profile fetch failed")
		h.exchangeFailure(w, provider, err)
		return
	}

	user := h.resolveUser(profile)
	if !user.IsActive {
		h.loginFailureStatus(w, provider, "deactivated",
			http.StatusForbidden, "account is deactivated")
		return
	}

	sessionID, err := h.m.sessions.Create(user)
	if err != nil {
		h.m.logger.WithError(err).Error("failed to create session")
		h.loginFailureStatus(w, provider, "session",
			http.StatusInternalServerError, "authentication failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.m.sessions.IdleTimeout().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	h.m.metrics.LoginsTotal.WithLabelValues(provider).Inc()
	h.m.metrics.SessionsCreatedTotal.Inc()
	h.recordAudit(audit.Event{
		Type:     audit.EventLogin,
		Username: user.Username,
		Provider: provider,
	})
	h.m.logger.WithFields(map[string]interface{}{
		"username": user.Username,
		"provider": provider,
	}).Info("user logged in")

	http.Redirect(w, r, "/", http.StatusFound)
}

// resolveUser refreshes a returning user's record or provisions a new one.
// Persistence failures are logged but never block the login; the registry
// keeps the update in memory.
func (h *handlers) resolveUser(profile *sso.Profile) *auth.User {
	provider := h.m.provider.Name()

	user := h.m.users.GetByProviderID(provider, profile.ID)
	provisioned := user == nil
	if provisioned {
		user = h.m.provider.MapProfile(profile, h.m.cfg.DefaultRole)
	} else {
		now := time.Now().UTC()
		user.LastLogin = &now
		user.Email = profile.Email
		user.FullName = profile.FullName
		user.AvatarURL = profile.AvatarURL
	}

	stored, err := h.m.users.Upsert(user)
	if err != nil {
		h.m.logger.WithError(err).WithField("username", user.Username).
			Error("failed to persist user registry")
	}

	if provisioned {
		h.m.metrics.UsersProvisioned.Inc()
		h.recordAudit(audit.Event{
			Type:     audit.EventUserProvisioned,
			Username: stored.Username,
			Provider: provider,
			Detail:   string(stored.Role),
		})
	}
	return stored
}

// handleLogout handles GET|POST /auth/logout
// Idempotent: logging out without a session is still a redirect to login.
func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		user := h.m.sessions.Resolve(cookie.Value)
		if h.m.sessions.Invalidate(cookie.Value) && user != nil {
			h.recordAudit(audit.Event{
				Type:     audit.EventLogout,
				Username: user.Username,
			})
			h.m.logger.WithField("username", user.Username).Debug("session invalidated on logout")
		}
	}
	clearCookie(w, middleware.SessionCookieName, "/")
	http.Redirect(w, r, LoginPath, http.StatusFound)
}

// handleUser handles GET /auth/user
// Returns the authenticated user with its effective permission list.
func (h *handlers) handleUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetIdentity(r)
	if user == nil {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user":        user,
		"permissions": rbac.PermissionList(user.Role),
	})
}

// handleStatus handles GET /auth/status
// Public; always 200 so frontends can poll it.
func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.m.enabled {
		httputil.WriteSuccess(w, map[string]interface{}{
			"auth_enabled":  false,
			"authenticated": false,
		})
		return
	}

	body := map[string]interface{}{
		"auth_enabled":  true,
		"authenticated": false,
		"login_url":     LoginPath,
	}
	if user := middleware.GetIdentity(r); user != nil {
		body["authenticated"] = true
		body["user"] = user
	}
	httputil.WriteSuccess(w, body)
}

// handleListUsers handles GET /auth/admin/users
func (h *handlers) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users := h.m.users.List()
	httputil.WriteSuccess(w, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// handleSetRole handles PUT /auth/admin/users/{username}/role
func (h *handlers) handleSetRole(w http.ResponseWriter, r *http.Request) {
	username, err := httputil.PathVar(r, "username")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	role, err := auth.ParseRole(body.Role)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	found, err := h.m.users.SetRole(username, role)
	if err != nil {
		h.m.logger.WithError(err).Error("failed to persist role change")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to persist role change")
		return
	}
	if !found {
		httputil.WriteNotFound(w, "user not found")
		return
	}

	h.recordAudit(audit.Event{
		Type:     audit.EventRoleChanged,
		Username: username,
		Actor:    actorName(r),
		Detail:   string(role),
	})
	h.m.logger.WithFields(map[string]interface{}{
		"username": username,
		"role":     role,
	}).Info("user role updated")
	httputil.WriteSuccess(w, h.m.users.Get(username))
}

// handleDeleteUser handles DELETE /auth/admin/users/{username}
// Deleting a user also invalidates every session they hold.
func (h *handlers) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username, err := httputil.PathVar(r, "username")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if actor := middleware.GetIdentity(r); actor != nil && actor.Username == username {
		httputil.WriteBadRequest(w, "cannot delete your own account")
		return
	}

	found, err := h.m.users.Delete(username)
	if err != nil {
		h.m.logger.WithError(err).Error("failed to persist user deletion")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to persist user deletion")
		return
	}
	if !found {
		httputil.WriteNotFound(w, "user not found")
		return
	}

	invalidated := h.m.sessions.InvalidateAll(username)
	h.recordAudit(audit.Event{
		Type:     audit.EventUserDeleted,
		Username: username,
		Actor:    actorName(r),
	})
	h.m.logger.WithFields(map[string]interface{}{
		"username":             username,
		"sessions_invalidated": invalidated,
	}).Info("user deleted")
	httputil.WriteSuccess(w, map[string]interface{}{
		"deleted":              true,
		"sessions_invalidated": invalidated,
	})
}

// handleAdminStats handles GET /auth/admin/stats
func (h *handlers) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.m.Stats())
}

// loginFailure answers a failed login with a 400 and records the stage.
func (h *handlers) loginFailure(w http.ResponseWriter, provider, stage, message string) {
	h.loginFailureStatus(w, provider, stage, http.StatusBadRequest, message)
}

func (h *handlers) loginFailureStatus(w http.ResponseWriter, provider, stage string, status int, message string) {
	h.m.metrics.LoginFailuresTotal.WithLabelValues(provider, stage).Inc()
	h.recordAudit(audit.Event{
		Type:     audit.EventLoginFailure,
		Provider: provider,
		Detail:   stage,
	})
	httputil.WriteErrorMessage(w, status, message)
}

// recordAudit appends to the audit trail; failures are logged, never fatal.
func (h *handlers) recordAudit(event audit.Event) {
	if h.m.trail == nil {
		return
	}
	if err := h.m.trail.Record(event); err != nil {
		h.m.logger.WithError(err).Error("failed to record audit event")
	}
}

// actorName names the authenticated admin performing a request.
func actorName(r *http.Request) string {
	if actor := middleware.GetIdentity(r); actor != nil {
		return actor.Username
	}
	return ""
}

// exchangeFailure answers a provider-side failure with a sanitized 500.
// The stage comes from the typed error; details only go to the log.
func (h *handlers) exchangeFailure(w http.ResponseWriter, provider string, err error) {
	stage := "exchange"
	var exchErr *sso.ExchangeError
	if errors.As(err, &exchErr) {
		stage = exchErr.Stage
	}
	h.loginFailureStatus(w, provider, stage, http.StatusInternalServerError, "authentication failed")
}

// clearCookie expires a cookie immediately.
func clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
	})
}

package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/flowdeck/flowdeck/pkg/audit"
	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/config"
	"github.com/flowdeck/flowdeck/pkg/middleware"
	"github.com/flowdeck/flowdeck/pkg/observability"
	"github.com/flowdeck/flowdeck/pkg/session"
	"github.com/flowdeck/flowdeck/pkg/sso"
	"github.com/flowdeck/flowdeck/pkg/userstore"
)

// fakeProvider is an in-memory identity provider for handler tests.
type fakeProvider struct {
	profile *sso.Profile
}

func (p *fakeProvider) Name() string { return "github" }

func (p *fakeProvider) AuthorizationURL(state string) string {
	return "https://provider.example.com/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if code != "good-code" {
		return nil, &sso.ExchangeError{
			Provider: "github",
			Stage:    "exchange",
			Err:      errors.New("bad_verification_code"),
		}
	}
	return &oauth2.Token{AccessToken: "test-token"}, nil
}

func (p *fakeProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*sso.Profile, error) {
	if token.AccessToken != "test-token" {
		return nil, &sso.ExchangeError{
			Provider: "github",
			Stage:    "profile",
			Err:      errors.New("unauthorized"),
		}
	}
	return p.profile, nil
}

func (p *fakeProvider) MapProfile(profile *sso.Profile, defaultRole auth.Role) *auth.User {
	now := time.Now().UTC()
	return &auth.User{
		Username:   profile.Username,
		Email:      profile.Email,
		FullName:   profile.FullName,
		Role:       defaultRole,
		Provider:   "github",
		ProviderID: profile.ID,
		AvatarURL:  profile.AvatarURL,
		CreatedAt:  now,
		LastLogin:  &now,
		IsActive:   true,
	}
}

type testEnv struct {
	manager *Manager
	handler http.Handler
}

func newTestEnv(t *testing.T, overrides map[string]string) *testEnv {
	t.Helper()

	sessions := session.NewStore(time.Hour)
	users, err := userstore.NewStore(filepath.Join(t.TempDir(), "users.json"), overrides, nil)
	require.NoError(t, err)

	m := &Manager{
		cfg: config.AuthConfig{
			Enabled:        true,
			Provider:       "github",
			DefaultRole:    auth.RoleViewer,
			SessionTimeout: time.Hour,
		},
		provider: &fakeProvider{profile: &sso.Profile{
			ID:       "42",
			Username: "octocat",
			Email:    "octocat@example.com",
			FullName: "Mona Lisa Octocat",
		}},
		sessions: sessions,
		users:    users,
		states:   sso.NewStateStore(),
		metrics:  observability.NewAuthMetrics(nil),
		limiter: middleware.NewLoginRateLimiter(&middleware.RateLimitConfig{
			Burst:          1000,
			RefillInterval: time.Second,
			MaxClients:     16,
		}),
		trail:   audit.NopTrail{},
		logger:  observability.NopLogger(),
		enabled: true,
	}
	m.gateway = middleware.NewAuthMiddleware(sessions, users, LoginPath, nil, nil, m.metrics)

	router := mux.NewRouter()
	m.RegisterRoutes(router)

	return &testEnv{manager: m, handler: m.Middleware()(router)}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// startLogin performs GET /auth/login?direct=true and returns the issued
// state and the state cookie.
func startLogin(t *testing.T, env *testEnv) (string, *http.Cookie) {
	t.Helper()

	rec := env.do(httptest.NewRequest("GET", "/auth/login?direct=true", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == StateCookieName {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie)
	require.Equal(t, state, stateCookie.Value)
	return state, stateCookie
}

// completeLogin runs the whole flow and returns the session cookie.
func completeLogin(t *testing.T, env *testEnv) *http.Cookie {
	t.Helper()

	state, stateCookie := startLogin(t, env)

	req := httptest.NewRequest("GET",
		fmt.Sprintf("/auth/callback?code=good-code&state=%s", url.QueryEscape(state)), nil)
	req.AddCookie(stateCookie)
	rec := env.do(req)
	require.Equal(t, http.StatusFound, rec.Code, "callback body: %s", rec.Body.String())
	require.Equal(t, "/", rec.Header().Get("Location"))

	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set by callback")
	return nil
}

func TestLoginRendersPage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest("GET", "/auth/login", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "provider.example.com/authorize")
	assert.Contains(t, rec.Body.String(), "Sign in with GitHub")
	assert.Equal(t, 1, env.manager.states.PendingCount())
}

func TestLoginDirectRedirectsToProvider(t *testing.T) {
	env := newTestEnv(t, nil)

	state, _ := startLogin(t, env)
	assert.Equal(t, 1, env.manager.states.PendingCount())
	assert.NotEmpty(t, state)
}

func TestLoginRedirectsAuthenticatedUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := completeLogin(t, env)

	req := httptest.NewRequest("GET", "/auth/login", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallbackProvisionsNewUser(t *testing.T) {
	env := newTestEnv(t, nil)

	completeLogin(t, env)

	user := env.manager.users.Get("octocat")
	require.NotNil(t, user)
	assert.Equal(t, auth.RoleViewer, user.Role)
	assert.Equal(t, "github", user.Provider)
	assert.Equal(t, "42", user.ProviderID)
	assert.True(t, user.IsActive)
	assert.NotNil(t, user.LastLogin)
}

func TestCallbackAppliesRoleOverride(t *testing.T) {
	env := newTestEnv(t, map[string]string{"octocat": "admin"})

	completeLogin(t, env)

	user := env.manager.users.Get("octocat")
	require.NotNil(t, user)
	assert.Equal(t, auth.RoleAdmin, user.Role)
}

func TestCallbackRefreshesReturningUser(t *testing.T) {
	env := newTestEnv(t, nil)
	completeLogin(t, env)

	// An admin promotes the user between logins; the next login must not
	// reset the assigned role.
	ok, err := env.manager.users.SetRole("octocat", auth.RoleEditor)
	require.NoError(t, err)
	require.True(t, ok)

	completeLogin(t, env)

	user := env.manager.users.Get("octocat")
	require.NotNil(t, user)
	assert.Equal(t, auth.RoleEditor, user.Role)
}

func TestCallbackRejectsMissingParams(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, target := range []string{
		"/auth/callback",
		"/auth/callback?code=good-code",
		"/auth/callback?state=abc",
	} {
		rec := env.do(httptest.NewRequest("GET", target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
		assert.Contains(t, rec.Body.String(), "invalid state")
	}
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest("GET", "/auth/callback?code=good-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: StateCookieName, Value: "forged"})
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid state")
}

func TestCallbackRejectsMismatchedStateCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	state, _ := startLogin(t, env)

	req := httptest.NewRequest("GET",
		"/auth/callback?code=good-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: StateCookieName, Value: "different"})
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	state, stateCookie := startLogin(t, env)

	target := "/auth/callback?code=good-code&state=" + url.QueryEscape(state)

	req := httptest.NewRequest("GET", target, nil)
	req.AddCookie(stateCookie)
	require.Equal(t, http.StatusFound, env.do(req).Code)

	// Replaying the same state must fail.
	req = httptest.NewRequest("GET", target, nil)
	req.AddCookie(stateCookie)
	assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
}

func TestCallbackSanitizesExchangeFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	state, stateCookie := startLogin(t, env)

	req := httptest.NewRequest("GET",
		"/auth/callback?code=bad-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(stateCookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication failed")
	assert.NotContains(t, rec.Body.String(), "bad_verification_code")
}

func TestCallbackRejectsDeactivatedUser(t *testing.T) {
	env := newTestEnv(t, nil)
	completeLogin(t, env)

	ok, err := env.manager.users.SetActive("octocat", false)
	require.NoError(t, err)
	require.True(t, ok)

	state, stateCookie := startLogin(t, env)
	req := httptest.NewRequest("GET",
		"/auth/callback?code=good-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(stateCookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "deactivated")
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := completeLogin(t, env)

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))
	assert.Nil(t, env.manager.sessions.Resolve(cookie.Value))
}

func TestLogoutWithoutSessionIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest("GET", "/auth/logout", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))
}

func TestUserEndpointReturnsPermissions(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := completeLogin(t, env)

	req := httptest.NewRequest("GET", "/auth/user", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User        *auth.User `json:"user"`
		Permissions []string   `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.User)
	assert.Equal(t, "octocat", body.User.Username)
	assert.Contains(t, body.Permissions, "view_runs")
	assert.NotContains(t, body.Permissions, "manage_users")
}

func TestUserEndpointRequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest("GET", "/auth/user", nil)
	req.Header.Set("Accept", "application/json")
	rec := env.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusEndpointIsPublic(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest("GET", "/auth/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["auth_enabled"])
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, LoginPath, body["login_url"])
}

func TestStatusEndpointReportsIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := completeLogin(t, env)

	req := httptest.NewRequest("GET", "/auth/status", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["authenticated"])
	require.NotNil(t, body["user"])
}

func adminSession(t *testing.T, env *testEnv) *http.Cookie {
	t.Helper()

	admin := &auth.User{
		Username:   "root",
		Email:      "root@example.com",
		Role:       auth.RoleAdmin,
		Provider:   "github",
		ProviderID: "1",
		CreatedAt:  time.Now().UTC(),
		IsActive:   true,
	}
	_, err := env.manager.users.Upsert(admin)
	require.NoError(t, err)

	id, err := env.manager.sessions.Create(admin)
	require.NoError(t, err)
	return &http.Cookie{Name: middleware.SessionCookieName, Value: id}
}

func TestAdminEndpointsRequireManageUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	viewerCookie := completeLogin(t, env)

	req := httptest.NewRequest("GET", "/auth/admin/users", nil)
	req.AddCookie(viewerCookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminListUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	completeLogin(t, env)
	adminCookie := adminSession(t, env)

	req := httptest.NewRequest("GET", "/auth/admin/users", nil)
	req.AddCookie(adminCookie)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Users []*auth.User `json:"users"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestAdminSetRole(t *testing.T) {
	env := newTestEnv(t, nil)
	completeLogin(t, env)
	adminCookie := adminSession(t, env)

	req := httptest.NewRequest("PUT", "/auth/admin/users/octocat/role",
		strings.NewReader(`{"role":"editor"}`))
	req.AddCookie(adminCookie)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	user := env.manager.users.Get("octocat")
	require.NotNil(t, user)
	assert.Equal(t, auth.RoleEditor, user.Role)
}

func TestAdminSetRoleRejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t, nil)
	completeLogin(t, env)
	adminCookie := adminSession(t, env)

	req := httptest.NewRequest("PUT", "/auth/admin/users/octocat/role",
		strings.NewReader(`{"role":"superuser"}`))
	req.AddCookie(adminCookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSetRoleUnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)
	adminCookie := adminSession(t, env)

	req := httptest.NewRequest("PUT", "/auth/admin/users/ghost/role",
		strings.NewReader(`{"role":"editor"}`))
	req.AddCookie(adminCookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDeleteUserInvalidatesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	userCookie := completeLogin(t, env)
	adminCookie := adminSession(t, env)

	req := httptest.NewRequest("DELETE", "/auth/admin/users/octocat", nil)
	req.AddCookie(adminCookie)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.manager.users.Get("octocat"))
	assert.Nil(t, env.manager.sessions.Resolve(userCookie.Value))
}

func TestAdminCannotDeleteSelf(t *testing.T) {
	env := newTestEnv(t, nil)
	adminCookie := adminSession(t, env)

	req := httptest.NewRequest("DELETE", "/auth/admin/users/root", nil)
	req.AddCookie(adminCookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotNil(t, env.manager.users.Get("root"))
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t, nil)
	completeLogin(t, env)
	adminCookie := adminSession(t, env)

	req := httptest.NewRequest("GET", "/auth/admin/stats", nil)
	req.AddCookie(adminCookie)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.True(t, stats.Enabled)
	assert.Equal(t, "github", stats.Provider)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 2, stats.UserCount)
}

// memoryTrail collects audit events for assertions.
type memoryTrail struct {
	events []audit.Event
}

func (m *memoryTrail) Record(event audit.Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memoryTrail) Close() error { return nil }

func (m *memoryTrail) types() []audit.EventType {
	var out []audit.EventType
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func TestAuditTrailRecordsFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	trail := &memoryTrail{}
	env.manager.trail = trail

	cookie := completeLogin(t, env)

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(cookie)
	require.Equal(t, http.StatusFound, env.do(req).Code)

	assert.Equal(t, []audit.EventType{
		audit.EventUserProvisioned,
		audit.EventLogin,
		audit.EventLogout,
	}, trail.types())
	assert.Equal(t, "octocat", trail.events[1].Username)
	assert.Equal(t, "github", trail.events[1].Provider)
}

func TestAuditTrailRecordsAdminActions(t *testing.T) {
	env := newTestEnv(t, nil)
	completeLogin(t, env)
	adminCookie := adminSession(t, env)

	trail := &memoryTrail{}
	env.manager.trail = trail

	req := httptest.NewRequest("PUT", "/auth/admin/users/octocat/role",
		strings.NewReader(`{"role":"editor"}`))
	req.AddCookie(adminCookie)
	require.Equal(t, http.StatusOK, env.do(req).Code)

	req = httptest.NewRequest("DELETE", "/auth/admin/users/octocat", nil)
	req.AddCookie(adminCookie)
	require.Equal(t, http.StatusOK, env.do(req).Code)

	require.Len(t, trail.events, 2)
	assert.Equal(t, audit.EventRoleChanged, trail.events[0].Type)
	assert.Equal(t, "root", trail.events[0].Actor)
	assert.Equal(t, "editor", trail.events[0].Detail)
	assert.Equal(t, audit.EventUserDeleted, trail.events[1].Type)
}

func TestAuditTrailRecordsLoginFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	trail := &memoryTrail{}
	env.manager.trail = trail

	rec := env.do(httptest.NewRequest("GET", "/auth/callback?code=good-code&state=forged", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Len(t, trail.events, 1)
	assert.Equal(t, audit.EventLoginFailure, trail.events[0].Type)
	assert.Equal(t, "state", trail.events[0].Detail)
}

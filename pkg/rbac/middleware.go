package rbac

import (
	"net/http"

	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/httputil"
	"github.com/flowdeck/flowdeck/pkg/middleware"
)

// RequirePermission creates middleware that admits only identities holding
// the given permission. Unauthenticated requests get 401, authenticated but
// unauthorized requests get 403 with the deny reason.
func RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := middleware.GetIdentity(r)
			if user == nil {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			result := Check(user, perm)
			if !result.Allowed {
				httputil.WriteErrorMessage(w, http.StatusForbidden, result.Reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole creates middleware that admits only identities holding at
// least the given role.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := middleware.GetIdentity(r)
			if user == nil {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !user.HasRole(role) {
				httputil.WriteErrorMessage(w, http.StatusForbidden, "role "+string(role)+" or higher required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

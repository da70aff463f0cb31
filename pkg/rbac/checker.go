package rbac

import (
	"fmt"
	"sort"

	"github.com/flowdeck/flowdeck/pkg/auth"
)

// PermissionsForRole returns the effective permission set for a role: the
// union of its declared permissions and those of every role at a lower level.
func PermissionsForRole(role auth.Role) map[Permission]struct{} {
	perms := make(map[Permission]struct{})
	for _, r := range auth.AllRoles() {
		if role.AtLeast(r) {
			for _, p := range rolePermissions[r] {
				perms[p] = struct{}{}
			}
		}
	}
	return perms
}

// PermissionList returns the effective permissions for a role as a sorted
// slice, suitable for JSON responses.
func PermissionList(role auth.Role) []string {
	perms := PermissionsForRole(role)
	names := make([]string, 0, len(perms))
	for p := range perms {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

// Has reports whether the user holds the permission. Inactive or absent
// users hold no permissions.
func Has(user *auth.User, perm Permission) bool {
	if user == nil || !user.IsActive {
		return false
	}
	_, ok := PermissionsForRole(user.Role)[perm]
	return ok
}

// Check evaluates a permission and returns an explicit allow/deny result
// with a human-readable reason for the deny path.
func Check(user *auth.User, perm Permission) CheckResult {
	switch {
	case user == nil:
		return CheckResult{Reason: "authentication required"}
	case !user.IsActive:
		return CheckResult{Reason: "account is deactivated"}
	}
	if _, ok := PermissionsForRole(user.Role)[perm]; !ok {
		return CheckResult{
			Reason: fmt.Sprintf("role %q does not grant permission %q", user.Role, perm),
		}
	}
	return CheckResult{Allowed: true}
}

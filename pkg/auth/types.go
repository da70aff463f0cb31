package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role represents a user's role in the role hierarchy
type Role string

const (
	RoleViewer   Role = "viewer"   // Read-only access to runs, assets, schedules
	RoleLauncher Role = "launcher" // Can launch, terminate, and re-execute runs
	RoleEditor   Role = "editor"   // Can manage schedules, sensors, and the workspace
	RoleAdmin    Role = "admin"    // Full access including user management
)

// roleLevels orders roles for hierarchy checks. Higher level means more access.
var roleLevels = map[Role]int{
	RoleViewer:   1,
	RoleLauncher: 2,
	RoleEditor:   3,
	RoleAdmin:    4,
}

// Level returns the role's position in the hierarchy. Unknown roles return 0,
// which sorts below every defined role.
func (r Role) Level() int {
	return roleLevels[r]
}

// AtLeast reports whether this role carries at least the access of other.
func (r Role) AtLeast(other Role) bool {
	return r.Level() >= other.Level()
}

// Valid reports whether the role is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AllRoles returns every defined role ordered from lowest to highest level.
func AllRoles() []Role {
	return []Role{RoleViewer, RoleLauncher, RoleEditor, RoleAdmin}
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return role, nil
}

// User represents an identity provisioned from an OAuth provider.
//
// Username is the registry key; the (Provider, ProviderID) pair is unique
// across the registry. LastLogin is nil for users that have never completed
// a login after creation (for example, seeded accounts).
type User struct {
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FullName   string     `json:"full_name,omitempty"`
	Role       Role       `json:"role"`
	Provider   string     `json:"provider"`
	ProviderID string     `json:"provider_id"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	IsActive   bool       `json:"is_active"`
}

// HasRole reports whether the user is active and holds at least the required role.
func (u *User) HasRole(required Role) bool {
	return u != nil && u.IsActive && u.Role.AtLeast(required)
}

// Clone returns a deep copy of the user. Stores hand out clones so callers
// never share mutable state with a store's internal map.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		clone.LastLogin = &t
	}
	return &clone
}

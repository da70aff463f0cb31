package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Level(t *testing.T) {
	assert.Equal(t, 1, RoleViewer.Level())
	assert.Equal(t, 2, RoleLauncher.Level())
	assert.Equal(t, 3, RoleEditor.Level())
	assert.Equal(t, 4, RoleAdmin.Level())
	assert.Equal(t, 0, Role("bogus").Level())
}

func TestRole_AtLeast(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		required Role
		want     bool
	}{
		{"admin has editor access", RoleAdmin, RoleEditor, true},
		{"editor has launcher access", RoleEditor, RoleLauncher, true},
		{"launcher has viewer access", RoleLauncher, RoleViewer, true},
		{"viewer lacks launcher access", RoleViewer, RoleLauncher, false},
		{"launcher lacks editor access", RoleLauncher, RoleEditor, false},
		{"editor lacks admin access", RoleEditor, RoleAdmin, false},
		{"role satisfies itself", RoleEditor, RoleEditor, true},
		{"unknown role satisfies nothing", Role("bogus"), RoleViewer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.AtLeast(tt.required))
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input       string
		want        Role
		expectError bool
	}{
		{"viewer", RoleViewer, false},
		{"ADMIN", RoleAdmin, false},
		{" Editor ", RoleEditor, false},
		{"launcher", RoleLauncher, false},
		{"superuser", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			role, err := ParseRole(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, role)
		})
	}
}

func TestUser_HasRole(t *testing.T) {
	user := &User{Username: "alice", Role: RoleEditor, IsActive: true}
	assert.True(t, user.HasRole(RoleViewer))
	assert.True(t, user.HasRole(RoleEditor))
	assert.False(t, user.HasRole(RoleAdmin))

	user.IsActive = false
	assert.False(t, user.HasRole(RoleViewer), "inactive user has no access")

	var nilUser *User
	assert.False(t, nilUser.HasRole(RoleViewer))
}

func TestUser_JSONRoundTrip(t *testing.T) {
	lastLogin := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	user := &User{
		Username:   "alice",
		Email:      "alice@example.com",
		FullName:   "Alice Smith",
		Role:       RoleAdmin,
		Provider:   "github",
		ProviderID: "12345",
		AvatarURL:  "https://avatars.example.com/alice",
		CreatedAt:  time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC),
		LastLogin:  &lastLogin,
		IsActive:   true,
	}

	data, err := json.Marshal(user)
	require.NoError(t, err)

	var decoded User
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *user, decoded)
}

func TestUser_JSONRoundTrip_AbsentOptionals(t *testing.T) {
	user := &User{
		Username:   "bot",
		Email:      "bot@example.com",
		Role:       RoleViewer,
		Provider:   "oidc",
		ProviderID: "abc",
		CreatedAt:  time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC),
		IsActive:   true,
	}

	data, err := json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "full_name")
	assert.NotContains(t, string(data), "avatar_url")
	assert.NotContains(t, string(data), "last_login")

	var decoded User
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *user, decoded)
	assert.Nil(t, decoded.LastLogin)
}

func TestUser_Clone(t *testing.T) {
	lastLogin := time.Now().UTC()
	user := &User{Username: "alice", Role: RoleViewer, LastLogin: &lastLogin, IsActive: true}

	clone := user.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, *user, *clone)

	// Mutating the clone must not leak into the original.
	*clone.LastLogin = lastLogin.Add(time.Hour)
	clone.Role = RoleAdmin
	assert.Equal(t, lastLogin, *user.LastLogin)
	assert.Equal(t, RoleViewer, user.Role)
}

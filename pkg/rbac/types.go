package rbac

import "github.com/flowdeck/flowdeck/pkg/auth"

// Permission represents a named capability in the system
type Permission string

// Viewer permissions
const (
	PermViewRuns      Permission = "view_runs"
	PermViewAssets    Permission = "view_assets"
	PermViewSchedules Permission = "view_schedules"
	PermViewSensors   Permission = "view_sensors"
	PermViewJobs      Permission = "view_jobs"
	PermViewLogs      Permission = "view_logs"
	PermViewWorkspace Permission = "view_workspace"
)

// Launcher permissions
const (
	PermLaunchRuns    Permission = "launch_runs"
	PermTerminateRuns Permission = "terminate_runs"
	PermDeleteRuns    Permission = "delete_runs"
	PermReexecuteRuns Permission = "reexecute_runs"
)

// Editor permissions
const (
	PermStartSchedules  Permission = "start_schedules"
	PermStopSchedules   Permission = "stop_schedules"
	PermStartSensors    Permission = "start_sensors"
	PermStopSensors     Permission = "stop_sensors"
	PermUpdateWorkspace Permission = "update_workspace"
	PermManageBackfills Permission = "manage_backfills"
)

// Admin permissions
const (
	PermManageUsers          Permission = "manage_users"
	PermManagePermissions    Permission = "manage_permissions"
	PermViewInstanceConfig   Permission = "view_instance_config"
	PermManageInstanceConfig Permission = "manage_instance_config"
	PermAccessAllLocations   Permission = "access_all_locations"
)

// rolePermissions declares the permissions introduced at each role level.
// Effective permissions for a role are the union over all roles at or below
// its level; see PermissionsForRole.
var rolePermissions = map[auth.Role][]Permission{
	auth.RoleViewer: {
		PermViewRuns,
		PermViewAssets,
		PermViewSchedules,
		PermViewSensors,
		PermViewJobs,
		PermViewLogs,
		PermViewWorkspace,
	},
	auth.RoleLauncher: {
		PermLaunchRuns,
		PermTerminateRuns,
		PermDeleteRuns,
		PermReexecuteRuns,
	},
	auth.RoleEditor: {
		PermStartSchedules,
		PermStopSchedules,
		PermStartSensors,
		PermStopSensors,
		PermUpdateWorkspace,
		PermManageBackfills,
	},
	auth.RoleAdmin: {
		PermManageUsers,
		PermManagePermissions,
		PermViewInstanceConfig,
		PermManageInstanceConfig,
		PermAccessAllLocations,
	},
}

// AllPermissions returns the full permission catalog.
func AllPermissions() []Permission {
	var perms []Permission
	for _, role := range auth.AllRoles() {
		perms = append(perms, rolePermissions[role]...)
	}
	return perms
}

// CheckResult is the outcome of a permission check. Deny is a normal result,
// not an error; call sites branch on Allowed explicitly.
type CheckResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

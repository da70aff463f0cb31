// Package rbac provides role-based permission resolution for the Flowdeck
// webserver.
//
// # Overview
//
// Permissions are declared per role in a static table and inherited upward
// through the role hierarchy: a role's effective permission set is the union
// of its own declared permissions and those of every role at a lower level.
// Resolution is a pure computation over that table, so identical inputs
// always produce identical results.
//
// # Usage Example
//
// Point permission query:
//
//	if rbac.Has(user, rbac.PermLaunchRuns) {
//		// launch
//	}
//
// Explicit allow/deny result for call sites that report a reason:
//
//	result := rbac.Check(user, rbac.PermManageBackfills)
//	if !result.Allowed {
//		httputil.WriteErrorMessage(w, http.StatusForbidden, result.Reason)
//	}
//
// Route guards:
//
//	router.Handle("/runs/launch", rbac.RequirePermission(rbac.PermLaunchRuns)(handler))
//
// # Related Packages
//
//   - pkg/auth: role hierarchy the table is keyed by
//   - pkg/middleware: identity resolution that precedes permission checks
package rbac

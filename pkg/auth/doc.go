// Package auth defines the core identity model for the Flowdeck webserver:
// users provisioned from an OAuth identity provider and the ordered role
// hierarchy that drives role-based access control.
//
// Roles form a strict order (viewer < launcher < editor < admin); a role
// inherits every capability of the roles below it. Permission resolution on
// top of this hierarchy lives in pkg/rbac.
//
// # Related Packages
//
//   - pkg/rbac: role→permission resolution
//   - pkg/userstore: durable user registry
//   - pkg/sso: provider adapters that produce User records
package auth

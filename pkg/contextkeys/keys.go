// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import (
	"context"

	"github.com/flowdeck/flowdeck/pkg/auth"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains the *auth.User resolved for the request.
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: pkg/rbac guards, pkg/authflow handlers
	IdentityKey Key = "identity"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logging
	RequestIDKey Key = "request_id"
)

// WithIdentity returns a context carrying the resolved user.
func WithIdentity(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, IdentityKey, user)
}

// Identity extracts the resolved user from a context, or nil.
func Identity(ctx context.Context) *auth.User {
	user, _ := ctx.Value(IdentityKey).(*auth.User)
	return user
}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID extracts the request ID from a context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

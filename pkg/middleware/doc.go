// Package middleware provides the request-time authentication gateway for
// the Flowdeck webserver.
//
// The gateway classifies every inbound request as public or protected,
// resolves the caller's identity from the session cookie, re-validates it
// against the user registry, and either admits the request with the identity
// attached to its context or rejects it. Rejection is content-negotiated:
// API and GraphQL requests get a structured 401 with a login-redirect hint,
// browser requests get a 302 to the login page.
//
// A login rate limiter with bounded per-client state lives here as well; the
// composition root applies it to the login and callback endpoints.
package middleware

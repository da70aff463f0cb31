// Package authflow orchestrates the OAuth2 authorization-code flow and
// exposes the authentication HTTP surface. The Manager is the composition
// root: it builds the identity provider, the session and user stores, the
// CSRF state store, and the gateway middleware from configuration, and
// registers the /auth/* routes.
package authflow

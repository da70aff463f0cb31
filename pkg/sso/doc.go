// Package sso provides OAuth2 identity-provider adapters for the Flowdeck
// webserver.
//
// # Overview
//
// Each adapter encapsulates one provider behind the Provider interface:
// building the authorization URL, exchanging an authorization code for an
// access token, fetching the user profile, and mapping provider data to a
// normalized user record. GitHub and generic OpenID Connect providers are
// built in; additional providers implement the same four-operation contract
// with no shared base state.
//
// The package also owns the CSRF state store that binds a login attempt to
// its callback: states are opaque random tokens, valid for ten minutes, and
// consumed by exactly one successful validation.
//
// # Usage Example
//
//	provider, err := sso.NewProvider(ctx, &sso.Config{
//		Provider:     "github",
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		RedirectURL:  "https://flowdeck.example.com/auth/callback",
//	})
//
// # Related Packages
//
//   - pkg/authflow: sequences the login/callback flows over a Provider
//   - pkg/auth: the user record adapters map into
package sso

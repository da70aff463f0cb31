package sso

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/flowdeck/flowdeck/pkg/auth"
	"golang.org/x/oauth2"
)

// OIDCProvider implements the Provider contract against any OpenID Connect
// issuer, using discovery for endpoints and the verified ID token as the
// profile source.
type OIDCProvider struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and creates an OIDC provider.
func NewOIDCProvider(ctx context.Context, config *Config) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCProvider{
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
		},
	}, nil
}

// Name returns the provider name recorded on provisioned users.
func (p *OIDCProvider) Name() string {
	return "oidc"
}

// AuthorizationURL builds the issuer's authorization URL for a login attempt.
func (p *OIDCProvider) AuthorizationURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// ExchangeCode trades the authorization code for an access token.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{Provider: p.Name(), Stage: "exchange", Err: err}
	}
	return token, nil
}

// oidcClaims is the subset of standard claims the mapping needs.
type oidcClaims struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
}

// FetchProfile verifies the ID token carried in the token response and
// extracts the standard claims.
func (p *OIDCProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, &ExchangeError{
			Provider: p.Name(),
			Stage:    "profile",
			Err:      fmt.Errorf("missing id_token in token response"),
		}
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &ExchangeError{Provider: p.Name(), Stage: "profile", Err: err}
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, &ExchangeError{Provider: p.Name(), Stage: "profile", Err: err}
	}
	if claims.Email == "" {
		return nil, &ExchangeError{
			Provider: p.Name(),
			Stage:    "profile",
			Err:      fmt.Errorf("no email claim for subject %s", claims.Subject),
		}
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}

	return &Profile{
		ID:        claims.Subject,
		Username:  username,
		Email:     claims.Email,
		FullName:  claims.Name,
		AvatarURL: claims.Picture,
	}, nil
}

// MapProfile converts OIDC claims into a user record.
func (p *OIDCProvider) MapProfile(profile *Profile, defaultRole auth.Role) *auth.User {
	now := time.Now().UTC()
	return &auth.User{
		Username:   profile.Username,
		Email:      profile.Email,
		FullName:   profile.FullName,
		Role:       defaultRole,
		Provider:   p.Name(),
		ProviderID: profile.ID,
		AvatarURL:  profile.AvatarURL,
		CreatedAt:  now,
		LastLogin:  &now,
		IsActive:   true,
	}
}

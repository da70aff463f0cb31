package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowdeck/flowdeck/pkg/auth"
	"golang.org/x/oauth2"
)

// ErrInvalidState reports a CSRF state that is missing, expired, or already
// consumed.
var ErrInvalidState = errors.New("invalid or expired state parameter")

// ExchangeError reports a failure talking to the identity provider during
// code exchange or profile fetch.
type ExchangeError struct {
	Provider string
	Stage    string // "exchange" or "profile"
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Stage, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Profile is the normalized view of a provider's user-info payload.
type Profile struct {
	ID        string
	Username  string
	Email     string
	FullName  string
	AvatarURL string
}

// Provider is the contract one OAuth2 identity provider fulfills. Provider
// identity is an explicit named field, never inferred from the
// implementation type.
type Provider interface {
	// Name returns the stable provider name recorded on provisioned users.
	Name() string

	// AuthorizationURL builds the provider URL to redirect the browser to,
	// carrying the CSRF state.
	AuthorizationURL(state string) string

	// ExchangeCode trades an authorization code for an access token.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchProfile retrieves the user's profile with the access token.
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)

	// MapProfile converts a profile into a user record with the given
	// default role. Pure; performs no I/O.
	MapProfile(profile *Profile, defaultRole auth.Role) *auth.User
}

// Config describes a provider instance. Provider selects the adapter;
// IssuerURL is only used by the oidc adapter.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	IssuerURL    string
}

// Validate checks the fields every adapter requires.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	return nil
}

// NewProvider creates the adapter selected by config.Provider.
func NewProvider(ctx context.Context, config *Config) (Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case "", "github":
		return NewGitHubProvider(config), nil
	case "oidc":
		if config.IssuerURL == "" {
			return nil, fmt.Errorf("issuer_url is required for the oidc provider")
		}
		return NewOIDCProvider(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/flowdeck/flowdeck/pkg/auth"
	"golang.org/x/oauth2"
)

const (
	githubAuthURL  = "https://github.com/login/oauth/authorize"
	githubTokenURL = "https://github.com/login/oauth/access_token"
	githubAPIURL   = "https://api.github.com"
)

// GitHubProvider implements the Provider contract against GitHub OAuth.
type GitHubProvider struct {
	oauth2Config *oauth2.Config
	apiBaseURL   string
}

// NewGitHubProvider creates a GitHub provider. An empty scope list defaults
// to user:email, the minimum needed to resolve a login email.
func NewGitHubProvider(config *Config) *GitHubProvider {
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email"}
	}

	return &GitHubProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  githubAuthURL,
				TokenURL: githubTokenURL,
			},
			RedirectURL: config.RedirectURL,
			Scopes:      scopes,
		},
		apiBaseURL: githubAPIURL,
	}
}

// Name returns the provider name recorded on provisioned users.
func (p *GitHubProvider) Name() string {
	return "github"
}

// AuthorizationURL builds the GitHub authorization URL for a login attempt.
func (p *GitHubProvider) AuthorizationURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// ExchangeCode trades the authorization code for an access token.
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{Provider: p.Name(), Stage: "exchange", Err: err}
	}
	return token, nil
}

// githubUser is the subset of the /user payload the mapping needs.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchProfile retrieves the user and email list from the GitHub API. The
// profile email is the primary verified address, falling back to the first
// address the API reports.
func (p *GitHubProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	client := p.oauth2Config.Client(ctx, token)

	var user githubUser
	if err := p.getJSON(client, "/user", &user); err != nil {
		return nil, &ExchangeError{Provider: p.Name(), Stage: "profile", Err: err}
	}

	var emails []githubEmail
	if err := p.getJSON(client, "/user/emails", &emails); err != nil {
		return nil, &ExchangeError{Provider: p.Name(), Stage: "profile", Err: err}
	}

	email := user.Email
	if selected := selectEmail(emails); selected != "" {
		email = selected
	}
	if email == "" {
		return nil, &ExchangeError{
			Provider: p.Name(),
			Stage:    "profile",
			Err:      fmt.Errorf("no email address available for user %s", user.Login),
		}
	}

	return &Profile{
		ID:        strconv.FormatInt(user.ID, 10),
		Username:  user.Login,
		Email:     email,
		FullName:  user.Name,
		AvatarURL: user.AvatarURL,
	}, nil
}

// MapProfile converts a GitHub profile into a user record.
func (p *GitHubProvider) MapProfile(profile *Profile, defaultRole auth.Role) *auth.User {
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

func (p *GitHubProvider) getJSON(client *http.Client, path string, dest interface{}) error {
	req, err := http.NewRequest(http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// selectEmail picks the primary verified address, then any primary, then the
// first one reported.
func selectEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}

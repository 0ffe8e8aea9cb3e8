package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPI = "https://api.github.com"

// GitHubUser is the part of GitHub's /user response a judge account needs.
type GitHubUser struct {
	ID        int64  `json:"id"` // stable, unlike Login
	Login     string `json:"login"`
	Email     string `json:"email"` // empty when the user hides it
	AvatarURL string `json:"avatar_url"`
}

// GitHubProvider runs the Authorization Code flow against GitHub.
//
// FLOW:
//  1. AuthURL sends the browser to GitHub with our client ID and a state value
//  2. GitHub redirects back to the callback with a short-lived code
//  3. Exchange trades the code for an access token, server to server, using
//     the client secret, then reads the profile with that token
//
// The access token is used once and dropped. Sessions are our own JWTs.
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

// NewGitHubProvider needs the credentials of a GitHub OAuth App. callbackURL
// must match the app's "Authorization callback URL" exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPI,
	}
}

// AuthURL returns GitHub's authorization page for the given CSRF state.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange turns an authorization code into the GitHub profile. When the
// public profile hides the email, the primary verified address from
// /user/emails is used instead; failing that, Email stays empty.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, token)

	var user GitHubUser
	if err := getJSON(ctx, client, p.apiBase+"/user", &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned a user without an ID")
	}

	if user.Email == "" {
		user.Email = primaryEmail(ctx, client, p.apiBase)
	}
	return &user, nil
}

// primaryEmail is best effort: a missing email never blocks a login.
func primaryEmail(ctx context.Context, client *http.Client, apiBase string) string {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, apiBase+"/user/emails", &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("auth: building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: %s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("auth: decoding %s: %w", url, err)
	}
	return nil
}

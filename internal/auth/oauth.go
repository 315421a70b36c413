package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/resumelens/resume-analyzer/internal/model"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	githubAPIBase     = "https://api.github.com"
)

// Profile is the provider-neutral identity returned by a completed OAuth
// flow. Kind tags which provider produced it; the OAuth linker switches on
// Kind and never on a free-form string.
type Profile struct {
	Kind      model.Provider
	ID        string // stable provider user id, never empty
	Email     string // lower-cased; synthesized when the provider hides it
	Username  string // GitHub login; empty for Google
	FirstName string
	LastName  string
	AvatarURL string

	// EmailSynthesized is true when Email is the <login>@<provider>.local
	// placeholder rather than an address the provider disclosed.
	EmailSynthesized bool

	// EmailUnverified is true when the provider disclosed the address but
	// has not verified that the user owns it.
	EmailUnverified bool
}

// EmailTrusted reports whether Email proves ownership of that address and
// may therefore be used to join this identity to an existing account.
func (p *Profile) EmailTrusted() bool {
	return !p.EmailSynthesized && !p.EmailUnverified
}

// OAuthProvider runs the Authorization Code flow for one identity provider.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. AuthURL sends the browser to the provider's consent screen with our
//     client id, scopes and a random state.
//  2. The provider redirects back to our callback with a short-lived code.
//  3. Exchange trades the code for an access token (server-to-server, using
//     the client secret) and fetches the user's profile with it.
//
// The access token never reaches the browser and is discarded once the
// profile has been read.
type OAuthProvider struct {
	kind   model.Provider
	config *oauth2.Config

	// profile endpoints; overridden in tests
	googleUserInfoURL string
	githubAPIBase     string
}

// NewGoogleProvider creates a provider for Google sign-in.
// callbackURL must exactly match an authorized redirect URI in the Google
// Cloud console, e.g. "http://localhost:8080/api/auth/google/callback".
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		kind: model.ProviderGoogle,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		googleUserInfoURL: googleUserInfoURL,
	}
}

// NewGitHubProvider creates a provider for GitHub sign-in.
//
// Scopes we request:
//   - "read:user": public profile (id, login, name, avatar)
//   - "user:email": the email list, needed when the profile email is private
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		kind: model.ProviderGitHub,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		githubAPIBase: githubAPIBase,
	}
}

// Kind reports which provider this is.
func (p *OAuthProvider) Kind() model.Provider {
	return p.kind
}

// AuthURL returns the consent-screen URL for the given state.
//
// STATE PARAMETER:
// The handler stores the same random state in a short-lived cookie and
// compares it on callback, which stops an attacker from completing a flow
// they started in the victim's browser (login CSRF).
func (p *OAuthProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's profile.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	if code == "" {
		return nil, fmt.Errorf("auth: %s callback without authorization code", p.kind)
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging %s OAuth code: %w", p.kind, err)
	}

	// oauth2.Config.Client adds "Authorization: Bearer <token>" to every
	// request; resty adds JSON decoding and status handling on top.
	client := resty.NewWithClient(p.config.Client(ctx, tok)).
		SetHeader("Accept", "application/json")

	switch p.kind {
	case model.ProviderGoogle:
		return p.fetchGoogleProfile(ctx, client)
	case model.ProviderGitHub:
		return p.fetchGitHubProfile(ctx, client)
	default:
		return nil, fmt.Errorf("auth: unsupported provider %q", p.kind)
	}
}

// googleUser is the OpenID Connect userinfo response.
type googleUser struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

func (p *OAuthProvider) fetchGoogleProfile(ctx context.Context, client *resty.Client) (*Profile, error) {
	var gu googleUser
	resp, err := client.R().SetContext(ctx).SetResult(&gu).Get(p.googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode())
	}
	if gu.Sub == "" {
		return nil, fmt.Errorf("auth: Google returned a profile without an id")
	}

	profile := &Profile{
		Kind:      model.ProviderGoogle,
		ID:        gu.Sub,
		Email:     model.NormalizeEmail(gu.Email),
		FirstName: gu.GivenName,
		LastName:  gu.FamilyName,
		AvatarURL: gu.Picture,
	}
	switch {
	case profile.Email == "":
		profile.Email = syntheticEmail(gu.Sub, model.ProviderGoogle)
		profile.EmailSynthesized = true
	case !gu.EmailVerified:
		profile.EmailUnverified = true
	}
	return profile, nil
}

// githubUser is the portion of GET /user we care about.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"` // empty when hidden in GitHub settings
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *OAuthProvider) fetchGitHubProfile(ctx context.Context, client *resty.Client) (*Profile, error) {
	var gh githubUser
	resp, err := client.R().SetContext(ctx).SetResult(&gh).Get(p.githubAPIBase + "/user")
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode())
	}
	if gh.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	first, last := splitName(gh.Name)
	profile := &Profile{
		Kind:      model.ProviderGitHub,
		ID:        strconv.FormatInt(gh.ID, 10),
		Email:     model.NormalizeEmail(gh.Email),
		Username:  gh.Login,
		FirstName: first,
		LastName:  last,
		AvatarURL: gh.AvatarURL,
	}

	if profile.Email == "" {
		profile.Email = p.primaryGitHubEmail(ctx, client)
	}
	if profile.Email == "" {
		profile.Email = syntheticEmail(gh.Login, model.ProviderGitHub)
		profile.EmailSynthesized = true
	}
	return profile, nil
}

// primaryGitHubEmail asks /user/emails for the best verified address:
// primary and verified first, then any verified one. Failures are not
// fatal; the caller falls back to a synthesized address.
func (p *OAuthProvider) primaryGitHubEmail(ctx context.Context, client *resty.Client) string {
	var emails []githubEmail
	resp, err := client.R().SetContext(ctx).SetResult(&emails).Get(p.githubAPIBase + "/user/emails")
	if err != nil || resp.IsError() {
		return ""
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return model.NormalizeEmail(e.Email)
		}
	}
	for _, e := range emails {
		if e.Verified {
			return model.NormalizeEmail(e.Email)
		}
	}
	return ""
}

// syntheticEmail is the placeholder used when a provider does not disclose
// an address: <username>@<provider>.local.
func syntheticEmail(username string, provider model.Provider) string {
	return model.NormalizeEmail(fmt.Sprintf("%s@%s.local", username, provider))
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	first, last, _ = strings.Cut(full, " ")
	return first, strings.TrimSpace(last)
}

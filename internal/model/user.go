// Package model defines the data structures used throughout the application.
package model

import (
	"regexp"
	"strings"
	"time"
)

// Provider records how an account was first established.
//
// The set is closed: local, google, github. Code that branches on a
// provider switches over these constants rather than looking anything up
// by string, so adding a provider is a compile-visible change.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle, ProviderGitHub:
		return true
	}
	return false
}

// External reports whether p is an OAuth identity provider.
func (p Provider) External() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// DisplayName is the provider name shown to people ("Google", "GitHub").
func (p Provider) DisplayName() string {
	switch p {
	case ProviderGoogle:
		return "Google"
	case ProviderGitHub:
		return "GitHub"
	default:
		return "email and password"
	}
}

// emailPattern is deliberately loose: something@something.tld, no spaces.
var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// NormalizeEmail trims and lower-cases an address. Emails are compared
// case-insensitively everywhere, so they are stored in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email has the basic local@domain shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// User is the only persistent entity: a registered account.
//
// Optional unique fields (Username, GoogleID, GitHubID) use the empty string
// for "absent". The store writes them as NULL so that any number of users
// may lack them without tripping the unique index.
//
// PASSWORD FIELDS:
// PasswordHash is never serialised (json:"-") and read paths used by request
// handlers never load it. To change a password, call SetPassword; the
// credential store hashes the pending plaintext on the next Create/Save and
// clears it. A save without SetPassword never re-hashes anything.
type User struct {
	ID           string    `json:"id"        db:"id"`
	FirstName    string    `json:"firstName" db:"first_name"`
	LastName     string    `json:"lastName"  db:"last_name"`
	Username     string    `json:"username"  db:"username"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Provider     Provider  `json:"provider"  db:"provider"`
	GoogleID     string    `json:"-"         db:"google_id"`
	GitHubID     string    `json:"-"         db:"github_id"`
	Avatar       string    `json:"avatar"    db:"avatar"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`

	newPassword      string
	passwordModified bool
}

// SetPassword records a new plaintext password to be hashed on the next
// persist. It is the explicit "password modified" flag.
func (u *User) SetPassword(plaintext string) {
	u.newPassword = plaintext
	u.passwordModified = true
}

// PendingPassword returns the plaintext recorded by SetPassword and whether
// one is pending.
func (u *User) PendingPassword() (string, bool) {
	return u.newPassword, u.passwordModified
}

// ClearPendingPassword drops the plaintext once it has been hashed.
func (u *User) ClearPendingPassword() {
	u.newPassword = ""
	u.passwordModified = false
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ProviderID returns the external id linked for provider, or "".
func (u *User) ProviderID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderGitHub:
		return u.GitHubID
	}
	return ""
}

// LinkProvider stores the external id for provider on the user.
func (u *User) LinkProvider(p Provider, externalID string) {
	switch p {
	case ProviderGoogle:
		u.GoogleID = externalID
	case ProviderGitHub:
		u.GitHubID = externalID
	}
}

// PublicUser is the sanitized view of a User that is safe to send to a
// client. It has no password field at all, so nothing can leak through it.
type PublicUser struct {
	ID        string   `json:"id"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Avatar    string   `json:"avatar"`
	Provider  Provider `json:"provider"`
}

// Public returns the sanitized view of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Provider:  u.Provider,
	}
}

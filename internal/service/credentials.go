// Package service holds the business rules of the API.
//
//	AuthHandler (HTTP) → AuthService (rules) → CredentialStore → UserRepository (DB)
//	                                         ↘ TokenService (JWT)
//
// Services never see an http.Request and never write a status code. They
// return *apperror.AppError values and the handler layer maps them.
package service

import (
	"context"
	"fmt"

	"github.com/resumelens/resume-analyzer/internal/auth"
	"github.com/resumelens/resume-analyzer/internal/model"
	"github.com/resumelens/resume-analyzer/internal/repository"
)

// CredentialStore is the hashing-aware front of the user repository.
//
// EXPLICIT PASSWORD HASHING:
// A password is hashed only when the caller asked for it, either by calling
// model.User.SetPassword before Create/Save or by using CreateWithPassword.
// Saving a user for any other reason (linking an OAuth id, changing the
// avatar) never touches the hash, and a hash is never hashed again.
type CredentialStore struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(users repository.UserRepository, passwords *auth.PasswordService) *CredentialStore {
	return &CredentialStore{users: users, passwords: passwords}
}

// Create persists a new user, hashing a pending password first.
func (c *CredentialStore) Create(ctx context.Context, u *model.User) error {
	if err := c.hashPending(u); err != nil {
		return err
	}
	return c.users.Create(ctx, u)
}

// CreateWithPassword persists a new user with plaintext as its password.
func (c *CredentialStore) CreateWithPassword(ctx context.Context, u *model.User, plaintext string) error {
	u.SetPassword(plaintext)
	return c.Create(ctx, u)
}

// Save persists changes to an existing user, hashing a pending password
// first. Without one the stored hash is left as it is.
func (c *CredentialStore) Save(ctx context.Context, u *model.User) error {
	if err := c.hashPending(u); err != nil {
		return err
	}
	return c.users.Update(ctx, u)
}

// VerifyPassword checks plaintext against the user's stored hash. u must
// come from FindCredentialsByEmail; other read paths carry no hash and
// always verify as false.
func (c *CredentialStore) VerifyPassword(u *model.User, plaintext string) (bool, error) {
	return c.passwords.Verify(u.PasswordHash, plaintext)
}

func (c *CredentialStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	return c.users.FindByID(ctx, id)
}

func (c *CredentialStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return c.users.FindByEmail(ctx, email)
}

func (c *CredentialStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return c.users.FindByUsername(ctx, username)
}

func (c *CredentialStore) FindByProviderID(ctx context.Context, provider model.Provider, externalID string) (*model.User, error) {
	return c.users.FindByProviderID(ctx, provider, externalID)
}

func (c *CredentialStore) FindCredentialsByEmail(ctx context.Context, email string) (*model.User, error) {
	return c.users.FindCredentialsByEmail(ctx, email)
}

// hashPending replaces a pending plaintext with its hash. On success the
// pending flag is cleared, so retrying a failed insert does not hash twice.
func (c *CredentialStore) hashPending(u *model.User) error {
	plaintext, pending := u.PendingPassword()
	if !pending {
		return nil
	}

	hash, err := c.passwords.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("service/credentials: %w", err)
	}
	u.PasswordHash = hash
	u.ClearPendingPassword()
	return nil
}

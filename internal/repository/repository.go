// Package repository declares the storage contracts the services depend on.
// The SQL implementation lives in repository/sqlstore; service tests use
// in-memory fakes.
package repository

import (
	"context"

	"github.com/resumelens/resume-analyzer/internal/model"
)

// UserRepository persists users.
//
// Uniqueness of email, username, google_id and github_id is enforced by the
// store's own unique indexes, never by a lookup before the write. A write
// that violates one returns an *apperror.AppError matching
// apperror.ErrConflict whose Field names the column ("email", "username",
// "googleId", "githubId"). Lookups that find nothing return an error
// matching apperror.ErrNotFound.
//
// Every Find* method except FindCredentialsByEmail leaves PasswordHash
// empty: the hash is only read on the login path.
type UserRepository interface {
	// Create inserts u, assigning ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, u *model.User) error

	// Update persists profile fields and provider links of an existing
	// user and bumps UpdatedAt. The password hash is written only when
	// u.PasswordHash is non-empty, so saving a user read without its hash
	// never erases it.
	Update(ctx context.Context, u *model.User) error

	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider model.Provider, externalID string) (*model.User, error)

	// FindCredentialsByEmail is FindByEmail plus PasswordHash.
	FindCredentialsByEmail(ctx context.Context, email string) (*model.User, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

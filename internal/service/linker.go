package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resumelens/resume-analyzer/internal/apperror"
	"github.com/resumelens/resume-analyzer/internal/auth"
	"github.com/resumelens/resume-analyzer/internal/model"
)

// LinkOutcome says how an OAuth profile was resolved to a local user.
type LinkOutcome string

const (
	// OutcomeAuthenticated: a user already carried this provider id.
	OutcomeAuthenticated LinkOutcome = "authenticated"
	// OutcomeLinked: an existing user with the same email got the provider id.
	OutcomeLinked LinkOutcome = "linked"
	// OutcomeCreated: a new user was created from the profile.
	OutcomeCreated LinkOutcome = "created"
)

// OAuthResult is an AuthResult plus how the user was found.
type OAuthResult struct {
	AuthResult
	Outcome LinkOutcome
}

// ResolveOAuthProfile maps a provider profile to a local user and issues a
// token for it.
//
// RESOLUTION ORDER:
//  1. A user whose google_id/github_id equals the profile id → AUTHENTICATED.
//  2. A user with the profile's email → the provider id and avatar are
//     written onto that user → LINKED. Email is the join key because one
//     person signing in through different providers is still one person.
//     Only a trusted email joins: a synthesized or unverified address skips
//     this step. A user already linked to a different account of the same
//     provider is never re-pointed; that is a conflict.
//  3. Otherwise a new user with provider = profile.Kind and no password
//     → CREATED.
//
// Re-running the callback for the same profile always lands in step 1, so
// it never creates a second user. Persistence failures are returned as-is
// and not retried.
func (s *AuthService) ResolveOAuthProfile(ctx context.Context, p *auth.Profile) (*OAuthResult, error) {
	if err := validateProfile(p); err != nil {
		return nil, err
	}

	user, outcome, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	s.logger.Info("oauth sign-in",
		slog.String("provider", string(p.Kind)),
		slog.String("outcome", string(outcome)),
		slog.String("user_id", user.ID),
	)

	res, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &OAuthResult{AuthResult: *res, Outcome: outcome}, nil
}

func (s *AuthService) resolve(ctx context.Context, p *auth.Profile) (*model.User, LinkOutcome, error) {
	user, err := s.creds.FindByProviderID(ctx, p.Kind, p.ID)
	switch {
	case err == nil:
		return user, OutcomeAuthenticated, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, "", fmt.Errorf("service/linker: finding %s user %s: %w", p.Kind, p.ID, err)
	}

	if p.EmailTrusted() {
		user, err = s.creds.FindByEmail(ctx, p.Email)
		switch {
		case err == nil:
			return s.link(ctx, user, p)
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, "", fmt.Errorf("service/linker: finding user by email: %w", err)
		}
	}

	user, err = s.createFromProfile(ctx, p)
	if err != nil {
		return nil, "", fmt.Errorf("service/linker: creating %s user: %w", p.Kind, err)
	}
	return user, OutcomeCreated, nil
}

// link writes the profile's provider id onto user.
func (s *AuthService) link(ctx context.Context, user *model.User, p *auth.Profile) (*model.User, LinkOutcome, error) {
	if existing := user.ProviderID(p.Kind); existing != "" && existing != p.ID {
		s.logger.Warn("oauth link refused: account already linked",
			slog.String("provider", string(p.Kind)),
			slog.String("user_id", user.ID),
		)
		return nil, "", apperror.Conflict(providerField(p.Kind), fmt.Sprintf(
			"This email is already linked to a different %s account", p.Kind.DisplayName()))
	}

	user.LinkProvider(p.Kind, p.ID)
	if p.AvatarURL != "" {
		user.Avatar = p.AvatarURL
	}
	if err := s.creds.Save(ctx, user); err != nil {
		return nil, "", fmt.Errorf("service/linker: linking %s to user %s: %w", p.Kind, user.ID, err)
	}
	return user, OutcomeLinked, nil
}

func providerField(p model.Provider) string {
	if p == model.ProviderGoogle {
		return "googleId"
	}
	return "githubId"
}

// createFromProfile inserts a password-less user. The provider's username
// (GitHub login) is kept when free; if it is taken, by an earlier lookup or
// by a concurrent insert, the user is created without one.
func (s *AuthService) createFromProfile(ctx context.Context, p *auth.Profile) (*model.User, error) {
	user := &model.User{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Provider:  p.Kind,
		Avatar:    p.AvatarURL,
	}
	user.LinkProvider(p.Kind, p.ID)

	if p.Username != "" {
		_, err := s.creds.FindByUsername(ctx, p.Username)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			user.Username = p.Username
		case err != nil:
			return nil, err
		}
	}

	err := s.creds.Create(ctx, user)
	if user.Username != "" && isConflictOn(err, "username") {
		user.Username = ""
		err = s.creds.Create(ctx, user)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func validateProfile(p *auth.Profile) error {
	switch {
	case p == nil:
		return fmt.Errorf("service/linker: nil profile")
	case !p.Kind.External():
		return fmt.Errorf("service/linker: %q is not an OAuth provider", p.Kind)
	case p.ID == "":
		return fmt.Errorf("service/linker: %s profile without id", p.Kind)
	case !model.ValidEmail(p.Email):
		return fmt.Errorf("service/linker: %s profile has unusable email %q", p.Kind, p.Email)
	}
	return nil
}

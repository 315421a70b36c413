package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/resumelens/resume-analyzer/internal/apperror"
	"github.com/resumelens/resume-analyzer/internal/auth"
	"github.com/resumelens/resume-analyzer/internal/metrics"
	"github.com/resumelens/resume-analyzer/internal/model"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72 // bcrypt input limit, in bytes

	msgMissingCredentials = "Please provide email and password"
	msgInvalidCredentials = "Invalid credentials"
)

// AuthService handles registration, login and OAuth sign-in.
//
// DEPENDENCIES (injected via NewAuthService):
//   - creds    *CredentialStore      → user lookups, explicit password hashing
//   - tokens   *auth.TokenService    → JWT issuance
//   - metrics  metrics.Recorder      → registration and login counters
//   - logger   *slog.Logger          → structured logging
type AuthService struct {
	creds   *CredentialStore
	tokens  *auth.TokenService
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewAuthService creates an AuthService. rec may be nil.
func NewAuthService(
	creds *CredentialStore,
	tokens *auth.TokenService,
	rec metrics.Recorder,
	logger *slog.Logger,
) *AuthService {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &AuthService{
		creds:   creds,
		tokens:  tokens,
		metrics: rec,
		logger:  logger,
	}
}

// AuthResult bundles the user and the issued token so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the body of POST /api/auth/register.
type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register creates a local account and issues a token for it.
//
// USERNAME POLICY:
// username is optional. When omitted it defaults to the email's local
// part; if that default is already taken, one retry is made with a short
// unique suffix. A username the client supplied explicitly is never
// altered: if taken, registration fails with a conflict.
//
// Uniqueness is left entirely to the store. There is no "does this email
// exist?" lookup first, because two concurrent requests would both pass it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := model.NormalizeEmail(in.Email)
	if err := validateRegistration(email, in.Password); err != nil {
		s.metrics.RecordRegistration("invalid")
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	defaulted := username == ""
	if defaulted {
		username = defaultUsername(email)
	}

	user := &model.User{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Username:  username,
		Email:     email,
		Provider:  model.ProviderLocal,
	}

	err := s.creds.CreateWithPassword(ctx, user, in.Password)
	if defaulted && isConflictOn(err, "username") {
		user.Username = username + "-" + shortSuffix()
		err = s.creds.Create(ctx, user)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.metrics.RecordRegistration("conflict")
			return nil, err
		}
		s.metrics.RecordRegistration(metrics.ResultError)
		return nil, fmt.Errorf("service/auth: registering %s: %w", email, err)
	}

	s.metrics.RecordRegistration(metrics.ResultSuccess)
	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	user.PasswordHash = ""
	return s.issue(user)
}

// Login authenticates a local account by email and password.
//
// An unknown email and a wrong password produce the same 401 and message,
// so the endpoint cannot be used to probe which emails are registered. An
// account created through Google or GitHub that never set a password gets a
// message naming its provider instead.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", msgMissingCredentials)
	}

	user, err := s.creds.FindCredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.metrics.RecordLogin(string(model.ProviderLocal), false)
			return nil, apperror.Unauthenticated(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: loading credentials: %w", err)
	}

	if !user.HasPassword() {
		s.metrics.RecordLogin(string(user.Provider), false)
		if user.Provider.External() {
			name := user.Provider.DisplayName()
			return nil, apperror.Unauthenticated(fmt.Sprintf(
				"This account uses %s sign-in. Please log in with %s.", name, name))
		}
		return nil, apperror.Unauthenticated(msgInvalidCredentials)
	}

	ok, err := s.creds.VerifyPassword(user, password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", user.ID, err)
	}
	if !ok {
		s.metrics.RecordLogin(string(user.Provider), false)
		return nil, apperror.Unauthenticated(msgInvalidCredentials)
	}

	s.metrics.RecordLogin(string(user.Provider), true)
	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	user.PasswordHash = ""
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func validateRegistration(email, password string) error {
	switch {
	case email == "" || password == "":
		return apperror.ValidationFailed("email", msgMissingCredentials)
	case !model.ValidEmail(email):
		return apperror.ValidationFailed("email", "Please provide a valid email")
	case utf8.RuneCountInString(password) < minPasswordLength:
		return apperror.ValidationFailed("password", "Password must be at least 6 characters")
	case len(password) > maxPasswordLength:
		return apperror.ValidationFailed("password", "Password must be at most 72 characters")
	}
	return nil
}

// defaultUsername is the local part of an already validated email.
func defaultUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// shortSuffix is the tail of a fresh xid, which carries the low bits of its
// per-process counter and so differs between calls.
func shortSuffix() string {
	id := xid.New().String()
	return id[len(id)-6:]
}

// isConflictOn reports whether err is a uniqueness conflict on field.
func isConflictOn(err error, field string) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && errors.Is(appErr, apperror.ErrConflict) && appErr.Field == field
}

package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"

	"github.com/resumelens/resume-analyzer/internal/apperror"
	"github.com/resumelens/resume-analyzer/internal/auth"
	"github.com/resumelens/resume-analyzer/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. Like the SQL
// store it enforces uniqueness itself, under one mutex, so concurrent
// tests see exactly one winner.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User // keyed by ID

	// set to a non-nil error to simulate a database failure
	createErr error
	updateErr error
	findErr   error

	creates int
	updates int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++

	if f.createErr != nil {
		return f.createErr
	}
	u.Email = model.NormalizeEmail(u.Email)
	if err := f.checkUniqueLocked(u, ""); err != nil {
		return err
	}
	if u.Provider == "" {
		u.Provider = model.ProviderLocal
	}
	u.ID = xid.New().String()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt

	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUserRepo) Update(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++

	if f.updateErr != nil {
		return f.updateErr
	}
	existing, ok := f.users[u.ID]
	if !ok {
		return apperror.NotFound("user", u.ID)
	}
	if err := f.checkUniqueLocked(u, u.ID); err != nil {
		return err
	}

	hash := existing.PasswordHash
	if u.PasswordHash != "" {
		hash = u.PasswordHash
	}
	stored := *u
	stored.PasswordHash = hash
	stored.UpdatedAt = time.Now().UTC()
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, "user", id, false)
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	return f.find(func(u *model.User) bool { return u.Email == email }, "user", email, false)
}

func (f *fakeUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return username != "" && u.Username == username }, "user", username, false)
}

func (f *fakeUserRepo) FindByProviderID(_ context.Context, p model.Provider, id string) (*model.User, error) {
	if !p.External() {
		return nil, apperror.ValidationFailed("provider", "unsupported provider")
	}
	return f.find(func(u *model.User) bool { return id != "" && u.ProviderID(p) == id }, "user", id, false)
}

func (f *fakeUserRepo) FindCredentialsByEmail(_ context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	return f.find(func(u *model.User) bool { return u.Email == email }, "user", email, true)
}

func (f *fakeUserRepo) find(match func(*model.User) bool, resource, key string, withHash bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if match(u) {
			c := *u
			if !withHash {
				c.PasswordHash = ""
			}
			return &c, nil
		}
	}
	return nil, apperror.NotFound(resource, key)
}

func (f *fakeUserRepo) checkUniqueLocked(u *model.User, self string) error {
	for id, other := range f.users {
		if id == self {
			continue
		}
		switch {
		case other.Email == u.Email:
			return apperror.Conflict("email", "User already exists with this email")
		case u.Username != "" && other.Username == u.Username:
			return apperror.Conflict("username", "Username is already taken")
		case u.GoogleID != "" && other.GoogleID == u.GoogleID:
			return apperror.Conflict("googleId", "This Google account is already linked to another user")
		case u.GitHubID != "" && other.GitHubID == u.GitHubID:
			return apperror.Conflict("githubId", "This GitHub account is already linked to another user")
		}
	}
	return nil
}

// stored returns the persisted row for email, hash included.
func (f *fakeUserRepo) stored(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := f.FindCredentialsByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// fakeRecorder counts metric calls by label.
type fakeRecorder struct {
	mu            sync.Mutex
	registrations map[string]int
	logins        map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{registrations: map[string]int{}, logins: map[string]int{}}
}

func (r *fakeRecorder) RecordRegistration(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations[result]++
}

func (r *fakeRecorder) RecordLogin(provider string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := provider + "/fail"
	if success {
		key = provider + "/ok"
	}
	r.logins[key]++
}

func (r *fakeRecorder) RecordOAuthCallback(string, string)                   {}
func (r *fakeRecorder) RecordTokenValidation(string)                         {}
func (r *fakeRecorder) RecordHTTPRequest(string, string, int, time.Duration) {}

const testSecret = "test-secret-at-least-16-chars!!"

// testEnv bundles an AuthService with the fakes behind it.
type testEnv struct {
	svc     *AuthService
	repo    *fakeUserRepo
	tokens  *auth.TokenService
	creds   *CredentialStore
	metrics *fakeRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ts, err := auth.NewTokenService(testSecret, auth.DefaultTokenTTL)
	require.NoError(t, err)

	// Cost 4 is the bcrypt minimum and keeps tests fast.
	repo := newFakeUserRepo()
	creds := NewCredentialStore(repo, auth.NewPasswordServiceForTest(4))
	rec := newFakeRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		svc:     NewAuthService(creds, ts, rec, logger),
		repo:    repo,
		tokens:  ts,
		creds:   creds,
		metrics: rec,
	}
}

// requireTokenFor asserts that token verifies and names userID.
func requireTokenFor(t *testing.T, ts *auth.TokenService, token, userID string) {
	t.Helper()
	sub, err := ts.Verify(token)
	require.NoError(t, err)
	require.Equal(t, userID, sub)
}

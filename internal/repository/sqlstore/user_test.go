package sqlstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumelens/resume-analyzer/internal/apperror"
	"github.com/resumelens/resume-analyzer/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDB opens a migrated in-memory SQLite database that is closed when
// the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DialectSQLite, ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *DB, u *model.User) *model.User {
	t.Helper()
	require.NoError(t, db.Create(context.Background(), u))
	return u
}

func requireConflict(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, apperror.ErrConflict), "want conflict, got %v", err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, field, appErr.Field)
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreate_AssignsIDAndTimestamps(t *testing.T) {
	db := newTestDB(t)

	u := createUser(t, db, &model.User{Email: "A@X.com", PasswordHash: "$2a$04$hash"})

	assert.Len(t, u.ID, 20, "xid string")
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)
	assert.Equal(t, model.ProviderLocal, u.Provider)

	got, err := db.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "a@x.com", got.Email, "email is stored lower-cased")
}

func TestCreate_UniqueConstraints(t *testing.T) {
	db := newTestDB(t)
	createUser(t, db, &model.User{
		Email: "taken@x.com", Username: "taken", GoogleID: "g-1", GitHubID: "gh-1",
	})

	tests := []struct {
		name  string
		user  *model.User
		field string
	}{
		{"email", &model.User{Email: "taken@x.com"}, "email"},
		{"email differs only in case", &model.User{Email: "TAKEN@x.com"}, "email"},
		{"username", &model.User{Email: "other1@x.com", Username: "taken"}, "username"},
		{"google id", &model.User{Email: "other2@x.com", GoogleID: "g-1"}, "googleId"},
		{"github id", &model.User{Email: "other3@x.com", GitHubID: "gh-1"}, "githubId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.Create(context.Background(), tt.user)
			requireConflict(t, err, tt.field)
			assert.Empty(t, tt.user.ID, "failed create must not leave an id behind")
		})
	}
}

func TestCreate_AbsentOptionalFieldsDoNotCollide(t *testing.T) {
	db := newTestDB(t)

	// username, google_id and github_id are NULL for both rows.
	createUser(t, db, &model.User{Email: "one@x.com"})
	createUser(t, db, &model.User{Email: "two@x.com"})
}

func TestCreate_ConcurrentDuplicateEmail(t *testing.T) {
	// File database so that several connections really race.
	dsn := filepath.Join(t.TempDir(), "race.db")
	db, err := Open(context.Background(), DialectSQLite, dsn, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Create(context.Background(), &model.User{Email: "dup@x.com"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperror.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

// =========================================================================
// READ PATHS
// =========================================================================

func TestFind_NeverLoadsPasswordHash(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, &model.User{
		Email: "a@x.com", Username: "ada", PasswordHash: "$2a$04$secret", GitHubID: "42",
	})

	byID, err := db.FindByID(ctx, u.ID)
	require.NoError(t, err)
	byEmail, err := db.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	byUsername, err := db.FindByUsername(ctx, "ada")
	require.NoError(t, err)
	byProvider, err := db.FindByProviderID(ctx, model.ProviderGitHub, "42")
	require.NoError(t, err)

	for _, got := range []*model.User{byID, byEmail, byUsername, byProvider} {
		assert.Equal(t, u.ID, got.ID)
		assert.Empty(t, got.PasswordHash)
	}

	creds, err := db.FindCredentialsByEmail(ctx, "A@x.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$secret", creds.PasswordHash)
}

func TestFind_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = db.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = db.FindByUsername(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = db.FindByProviderID(ctx, model.ProviderGoogle, "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = db.FindByProviderID(ctx, model.ProviderLocal, "x")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestFind_OptionalFieldsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, &model.User{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.com",
		Provider: model.ProviderGoogle, GoogleID: "g-9", Avatar: "https://img/a.png",
	})

	got, err := db.FindByProviderID(context.Background(), model.ProviderGoogle, "g-9")
	require.NoError(t, err)

	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "Lovelace", got.LastName)
	assert.Equal(t, "", got.Username)
	assert.Equal(t, "", got.GitHubID)
	assert.Equal(t, model.ProviderGoogle, got.Provider)
	assert.Equal(t, "https://img/a.png", got.Avatar)
	assert.True(t, u.CreatedAt.Equal(got.CreatedAt))
}

// =========================================================================
// UPDATE
// =========================================================================

func TestUpdate_LinksProviderWithoutTouchingHash(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createUser(t, db, &model.User{Email: "a@x.com", PasswordHash: "$2a$04$keep"})

	// Loaded through a read path: no hash on the struct.
	u, err := db.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)

	u.LinkProvider(model.ProviderGoogle, "g-1")
	u.Avatar = "https://img/new.png"
	require.NoError(t, db.Update(ctx, u))

	creds, err := db.FindCredentialsByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$keep", creds.PasswordHash, "hash must survive an update without one")
	assert.Equal(t, "g-1", creds.GoogleID)
	assert.Equal(t, "https://img/new.png", creds.Avatar)
	assert.True(t, creds.UpdatedAt.After(creds.CreatedAt) || creds.UpdatedAt.Equal(creds.CreatedAt))
}

func TestUpdate_WritesNewHash(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, &model.User{Email: "a@x.com", PasswordHash: "$2a$04$old"})

	u.PasswordHash = "$2a$04$new"
	require.NoError(t, db.Update(ctx, u))

	creds, err := db.FindCredentialsByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$new", creds.PasswordHash)
}

func TestUpdate_Conflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createUser(t, db, &model.User{Email: "first@x.com", GitHubID: "gh-1"})
	second := createUser(t, db, &model.User{Email: "second@x.com"})

	second.GitHubID = "gh-1"
	requireConflict(t, db.Update(ctx, second), "githubId")
}

func TestUpdate_MissingUser(t *testing.T) {
	db := newTestDB(t)

	err := db.Update(context.Background(), &model.User{ID: "ghost", Email: "g@x.com", Provider: model.ProviderLocal})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestWrite_RejectsUnknownProvider(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{Email: "f@x.com", Provider: model.Provider("facebook")}
	err := db.Create(ctx, u)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "facebook"`)
	assert.Empty(t, u.ID)

	_, err = db.FindByEmail(ctx, "f@x.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	stored := createUser(t, db, &model.User{Email: "ok@x.com"})
	stored.Provider = model.Provider("")
	require.Error(t, db.Update(ctx, stored))

	got, err := db.FindByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderLocal, got.Provider)
}

// =========================================================================
// LIFECYCLE
// =========================================================================

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Ping(context.Background()))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("SQLite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	d, err = ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestPrepareSQLiteDSN(t *testing.T) {
	dir := t.TempDir()

	dsn, err := prepareSQLiteDSN(filepath.Join(dir, "nested", "app.db"))
	require.NoError(t, err)
	assert.Contains(t, dsn, "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	assert.DirExists(t, filepath.Join(dir, "nested"))

	mem, err := prepareSQLiteDSN(":memory:")
	require.NoError(t, err)
	assert.NotContains(t, mem, "journal_mode")

	custom, err := prepareSQLiteDSN("file:x.db?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	assert.Equal(t, "file:x.db?_pragma=foreign_keys(1)", custom)

	_, err = prepareSQLiteDSN("")
	assert.Error(t, err)
}

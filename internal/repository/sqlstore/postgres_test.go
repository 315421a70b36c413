package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumelens/resume-analyzer/internal/apperror"
	"github.com/resumelens/resume-analyzer/internal/model"
)

// PostgreSQL paths run against go-sqlmock: queries must use $n placeholders
// and pgconn errors must classify the same way as SQLite's. Optional
// columns reach the driver as NULL (nil) when empty.

func newPostgresMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return New(conn, DialectPostgres, testLogger()), mock
}

func pgError(code, constraint string) error {
	return &pgconn.PgError{Code: code, ConstraintName: constraint}
}

func TestPostgresCreate_UsesDollarPlaceholders(t *testing.T) {
	db, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id,first_name,last_name,username,email,password_hash,provider,google_id,github_id,avatar,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)")).
		WithArgs(sqlmock.AnyArg(), "", "", nil, "a@x.com", nil, "google", "g-1", nil, "",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &model.User{Email: "A@x.com", Provider: model.ProviderGoogle, GoogleID: "g-1"}
	require.NoError(t, db.Create(context.Background(), u))
	assert.NotEmpty(t, u.ID)
}

func TestPostgresCreate_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		field      string
	}{
		{"users_email_key", "email"},
		{"users_username_key", "username"},
		{"users_google_id_key", "googleId"},
		{"users_github_id_key", "githubId"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			db, mock := newPostgresMock(t)
			mock.ExpectExec("INSERT INTO users").
				WillReturnError(pgError(pgerrcode.UniqueViolation, tt.constraint))

			err := db.Create(context.Background(), &model.User{Email: "a@x.com"})
			requireConflict(t, err, tt.field)
		})
	}
}

func TestPostgresCreate_OtherErrorsAreNotConflicts(t *testing.T) {
	db, mock := newPostgresMock(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(pgError(pgerrcode.CheckViolation, "users_email_lower"))

	err := db.Create(context.Background(), &model.User{Email: "a@x.com"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrConflict))
}

func TestPostgresFindByID(t *testing.T) {
	db, mock := newPostgresMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(publicColumns).
		AddRow("u1", "Ada", "", nil, "a@x.com", "github", nil, "42", "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, first_name, last_name, username, email, provider, google_id, github_id, avatar, created_at, updated_at FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("u1").
		WillReturnRows(rows)

	u, err := db.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, "", u.Username)
	assert.Equal(t, "42", u.GitHubID)
	assert.Equal(t, model.ProviderGitHub, u.Provider)
	assert.Empty(t, u.PasswordHash)
}

func TestPostgresFindByEmail_NoRows(t *testing.T) {
	db, mock := newPostgresMock(t)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email = \\$1").
		WithArgs("nobody@x.com").
		WillReturnRows(sqlmock.NewRows(publicColumns))

	_, err := db.FindByEmail(context.Background(), "Nobody@x.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPostgresUpdate_SkipsEmptyHash(t *testing.T) {
	db, mock := newPostgresMock(t)

	// Nine SET columns plus the id; no password_hash.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET first_name = $1, last_name = $2, username = $3, email = $4, provider = $5, google_id = $6, github_id = $7, avatar = $8, updated_at = $9 WHERE id = $10")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &model.User{ID: "u1", Email: "a@x.com", Provider: model.ProviderLocal}
	require.NoError(t, db.Update(context.Background(), u))
}

func TestPostgresUpdate_ConnectionFailure(t *testing.T) {
	db, mock := newPostgresMock(t)
	mock.ExpectExec("UPDATE users").WillReturnError(pgError(pgerrcode.ConnectionFailure, ""))

	err := db.Update(context.Background(), &model.User{ID: "u1", Email: "a@x.com", Provider: model.ProviderLocal})
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrConflict))
	assert.False(t, errors.Is(err, apperror.ErrNotFound))
}

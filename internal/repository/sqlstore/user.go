package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/xid"

	"github.com/resumelens/resume-analyzer/internal/apperror"
	"github.com/resumelens/resume-analyzer/internal/model"
	"github.com/resumelens/resume-analyzer/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// publicColumns is every users column except password_hash. All read paths
// used by request handlers select exactly these.
var publicColumns = []string{
	"id", "first_name", "last_name", "username", "email", "provider",
	"google_id", "github_id", "avatar", "created_at", "updated_at",
}

// Create inserts a new user. ID and timestamps are assigned here.
//
// WHY XID?
// xid ids are 20 characters, URL-safe and roughly time-ordered, which keeps
// the primary key index append-mostly without exposing a row count.
func (db *DB) Create(ctx context.Context, u *model.User) error {
	if u.Provider == "" {
		u.Provider = model.ProviderLocal
	}
	if !u.Provider.Valid() {
		return fmt.Errorf("sqlstore: unknown provider %q", u.Provider)
	}
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now

	query, args, err := db.sb.Insert("users").
		Columns(
			"id", "first_name", "last_name", "username", "email", "password_hash",
			"provider", "google_id", "github_id", "avatar", "created_at", "updated_at",
		).
		Values(
			u.ID, u.FirstName, u.LastName, nullString(u.Username), model.NormalizeEmail(u.Email),
			nullString(u.PasswordHash), string(u.Provider), nullString(u.GoogleID),
			nullString(u.GitHubID), u.Avatar, u.CreatedAt, u.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building insert: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		u.ID = ""
		if conflict := conflictFromError(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlstore: inserting user: %w", err)
	}

	return nil
}

// Update persists the mutable fields of an existing user.
func (db *DB) Update(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		return fmt.Errorf("sqlstore: update of a user without id")
	}
	if !u.Provider.Valid() {
		return fmt.Errorf("sqlstore: unknown provider %q", u.Provider)
	}
	u.UpdatedAt = time.Now().UTC()

	builder := db.sb.Update("users").
		Set("first_name", u.FirstName).
		Set("last_name", u.LastName).
		Set("username", nullString(u.Username)).
		Set("email", model.NormalizeEmail(u.Email)).
		Set("provider", string(u.Provider)).
		Set("google_id", nullString(u.GoogleID)).
		Set("github_id", nullString(u.GitHubID)).
		Set("avatar", u.Avatar).
		Set("updated_at", u.UpdatedAt).
		Where(sq.Eq{"id": u.ID})

	// Read paths never load the hash, so an empty value means "unchanged".
	if u.PasswordHash != "" {
		builder = builder.Set("password_hash", u.PasswordHash)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: building update: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if conflict := conflictFromError(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlstore: updating user %s: %w", u.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: updating user %s: %w", u.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", u.ID)
	}
	return nil
}

func (db *DB) FindByID(ctx context.Context, id string) (*model.User, error) {
	return db.findOne(ctx, sq.Eq{"id": id}, id, false)
}

func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	return db.findOne(ctx, sq.Eq{"email": email}, email, false)
}

func (db *DB) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, apperror.NotFound("user", "")
	}
	return db.findOne(ctx, sq.Eq{"username": username}, username, false)
}

// FindByProviderID looks a user up by the id an OAuth provider assigned.
func (db *DB) FindByProviderID(ctx context.Context, provider model.Provider, externalID string) (*model.User, error) {
	var column string
	switch provider {
	case model.ProviderGoogle:
		column = "google_id"
	case model.ProviderGitHub:
		column = "github_id"
	default:
		return nil, apperror.ValidationFailed("provider", fmt.Sprintf("provider %q has no external id", provider))
	}
	if externalID == "" {
		return nil, apperror.NotFound("user", "")
	}
	return db.findOne(ctx, sq.Eq{column: externalID}, externalID, false)
}

// FindCredentialsByEmail is the only query that selects password_hash. It
// backs the login flow and nothing else.
func (db *DB) FindCredentialsByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	return db.findOne(ctx, sq.Eq{"email": email}, email, true)
}

func (db *DB) findOne(ctx context.Context, where sq.Eq, key string, withHash bool) (*model.User, error) {
	columns := publicColumns
	if withHash {
		columns = append(append([]string{}, publicColumns...), "password_hash")
	}

	query, args, err := db.sb.Select(columns...).From("users").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building select: %w", err)
	}

	var (
		u                                  model.User
		provider                           string
		username, googleID, githubID, hash sql.NullString
	)
	dest := []any{
		&u.ID, &u.FirstName, &u.LastName, &username, &u.Email, &provider,
		&googleID, &githubID, &u.Avatar, &u.CreatedAt, &u.UpdatedAt,
	}
	if withHash {
		dest = append(dest, &hash)
	}

	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("sqlstore: finding user %q: %w", key, err)
	}

	u.Provider = model.Provider(provider)
	u.Username = username.String
	u.GoogleID = googleID.String
	u.GitHubID = githubID.String
	u.PasswordHash = hash.String
	return &u, nil
}

// nullString stores "" as NULL so optional unique columns can be absent on
// any number of rows.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

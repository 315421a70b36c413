package sqlstore

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/resumelens/resume-analyzer/internal/apperror"
)

// uniqueField maps a users column to the API field name reported in
// conflicts, and the message shown to the client.
var uniqueField = map[string]struct{ field, message string }{
	"email":     {"email", "User already exists with this email"},
	"username":  {"username", "Username is already taken"},
	"google_id": {"googleId", "This Google account is already linked to another user"},
	"github_id": {"githubId", "This GitHub account is already linked to another user"},
}

// conflictFromError converts a unique-constraint violation into an
// apperror.Conflict naming the field. It returns nil for any other error.
func conflictFromError(err error) *apperror.AppError {
	column, ok := uniqueViolationColumn(err)
	if !ok {
		return nil
	}

	if f, known := uniqueField[column]; known {
		return apperror.Conflict(f.field, f.message)
	}
	return apperror.Conflict(column, "A user with these details already exists")
}

// uniqueViolationColumn reports whether err is a unique violation from
// either driver and, if so, which column it was on.
func uniqueViolationColumn(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgerrcode.UniqueViolation {
			return "", false
		}
		// Constraints are named users_<column>_key in the migration.
		name := strings.TrimSuffix(strings.TrimPrefix(pgErr.ConstraintName, "users_"), "_key")
		return name, true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return "", false
		}
		// "UNIQUE constraint failed: users.email"
		msg := liteErr.Error()
		if i := strings.Index(msg, "users."); i >= 0 {
			col := msg[i+len("users."):]
			if j := strings.IndexAny(col, " ,)"); j >= 0 {
				col = col[:j]
			}
			return col, true
		}
		return "", true
	}

	return "", false
}

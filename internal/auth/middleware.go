package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/resumelens/resume-analyzer/internal/apperror"
	"github.com/resumelens/resume-analyzer/internal/metrics"
	"github.com/resumelens/resume-analyzer/internal/model"
)

// CookieName is the auth cookie set on login, register and OAuth callback.
const CookieName = "token"

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A package-private key type
// means only this package can read or write the authenticated user, so no
// other package can shadow it by accident.
type contextKey string

const userKey contextKey = "user"

// UserLoader is the read path the gate needs. It must return an error
// matching apperror.ErrNotFound for an unknown id, and it must not load the
// password hash.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Gate is the Session Gate: it guards protected routes.
type Gate struct {
	tokens  *TokenService
	users   UserLoader
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewGate creates a Gate. rec may be nil.
func NewGate(tokens *TokenService, users UserLoader, rec metrics.Recorder, logger *slog.Logger) *Gate {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &Gate{tokens: tokens, users: users, metrics: rec, logger: logger}
}

// RequireAuth is a middleware that enforces authentication.
//
// It reads the bearer token from the Authorization header or, failing that,
// the "token" cookie; verifies it; loads the user it names; and stores the
// user in the request context. Any failure answers 401 and the wrapped
// handler never runs. A valid token for a user that no longer exists is
// treated exactly like an invalid token.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new one that wraps it.
// Chi applies them in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractToken(r)
		if raw == "" {
			g.reject(w, metrics.TokenMissing, "Not authorized, no token")
			return
		}

		userID, err := g.tokens.Verify(raw)
		if err != nil {
			result := metrics.TokenInvalid
			if errors.Is(err, ErrExpiredToken) {
				result = metrics.TokenExpired
			}
			g.reject(w, result, "Not authorized, token failed")
			return
		}

		user, err := g.users.FindByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				g.reject(w, metrics.TokenUnknownUser, "Not authorized, user not found")
				return
			}
			g.logger.Error("session gate: loading user",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			writeGateError(w, http.StatusInternalServerError, "Server error")
			return
		}

		// The loader never selects it; clear it anyway so nothing
		// downstream can serialise it.
		user.PasswordHash = ""

		g.metrics.RecordTokenValidation(metrics.TokenValid)
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (g *Gate) reject(w http.ResponseWriter, result, message string) {
	g.metrics.RecordTokenValidation(result)
	writeGateError(w, http.StatusUnauthorized, message)
}

// WithUser returns a copy of ctx carrying user. Handlers' tests use it to
// simulate an authenticated request without minting a token.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user, or (nil, false) if the
// request did not pass through RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// UserIDFromContext is a shorthand for UserFromContext(ctx).ID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return "", false
	}
	return u.ID, true
}

// extractToken looks at "Authorization: Bearer <jwt>" first and then the
// "token" cookie. Browsers send the cookie automatically; API clients and
// the SPA (which keeps the token from the OAuth redirect) use the header.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}

	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// writeGateError writes the API's uniform error body. It lives here rather
// than in package handler because handler depends on auth.
func writeGateError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

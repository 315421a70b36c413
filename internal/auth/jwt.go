// Package auth provides the identity primitives of the API: password
// hashing, JWT issuance and validation, OAuth providers and the middleware
// that gates protected routes.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The client registers or logs in (POST /api/auth/register|login), or
//     completes an OAuth flow at /api/auth/{google,github}/callback.
//  2. The server issues a JWT, returns it in the body (or the redirect URL
//     for OAuth) and also sets it as the HttpOnly "token" cookie.
//  3. On later calls the client sends "Authorization: Bearer <jwt>" or just
//     lets the browser send the cookie.
//  4. RequireAuth validates the token, loads the user and attaches it to
//     the request context.
//
// WHY JWT?
// Verification needs only the secret, no database lookup and no shared
// session state, so any replica can validate any token. The flip side is
// that a token stays valid until it expires: logout only clears the cookie.
// Every token carries a unique id (jti) so a denylist could be added later.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is how long an issued token stays valid.
	DefaultTokenTTL = 30 * 24 * time.Hour

	// tokenIssuer is checked on validation so tokens minted by other
	// services sharing the secret are rejected.
	tokenIssuer = "resume-analyzer"

	// MinSecretLength is the shortest HMAC secret NewTokenService accepts.
	MinSecretLength = 16
)

var (
	// ErrInvalidToken covers bad signatures, wrong algorithm or issuer,
	// malformed strings and missing claims.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrExpiredToken is returned for an otherwise valid token whose exp
	// is in the past. There is no refresh: the client must log in again.
	ErrExpiredToken = errors.New("auth: token expired")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens. Issuer and
// verifier are the same process, so a symmetric key is sufficient.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret and token
// lifetime. A zero ttl selects DefaultTokenTTL.
// Example secret: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of tokens issued by Issue. The auth cookie's
// max-age is set from it.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" carries the internal user id; "iat" and
// "exp" bound its lifetime; "jti" identifies the individual token.
type claims struct {
	jwt.RegisteredClaims
}

// Issue creates and signs a token for userID, valid for the configured TTL.
func (s *TokenService) Issue(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration creates a token with a custom lifetime. Tests use a
// negative duration to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("auth: cannot issue a token without a subject")
	}

	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and verifies a token and returns the user id in "sub".
//
// The error is ErrExpiredToken or ErrInvalidToken (possibly wrapping the
// library's reason). Verification is pure computation: no I/O.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm a token with "alg":"none" or an RSA header
// could be accepted. jwt.WithValidMethods restricts parsing to HS256.
func (s *TokenService) Verify(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c.Subject, nil
}

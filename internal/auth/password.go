package auth

// WHY BCRYPT?
// bcrypt is deliberately slow, which makes offline brute force expensive.
// Each call generates a random salt and embeds it, together with the cost,
// in the output string, so no separate salt column is needed:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
//
// Verification is done by bcrypt.CompareHashAndPassword, which compares in
// constant time and therefore does not leak how many leading bytes matched.

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used in production.
	DefaultCost = 12

	// MinProductionCost is the lowest cost the server will start with.
	MinProductionCost = 10

	// maxPasswordBytes is bcrypt's input limit. Longer inputs are silently
	// truncated by the algorithm, so they are rejected instead.
	maxPasswordBytes = 72
)

// ErrHashing marks an infrastructure failure of the hasher itself (bad
// cost, corrupt stored hash, oversized input). It is never returned for a
// plain wrong password; callers map it to a 500.
var ErrHashing = errors.New("auth: hashing failure")

// ErrPasswordTooLong is returned by Hash for inputs over 72 bytes. It wraps
// ErrHashing; the register flow validates length before reaching here.
var ErrPasswordTooLong = fmt.Errorf("%w: password must be %d bytes or fewer", ErrHashing, maxPasswordBytes)

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected:
// tests use cost 4 and run in milliseconds.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the given cost. A cost
// of zero selects DefaultCost.
func NewPasswordService(cost int) *PasswordService {
	if cost == 0 {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// NewPasswordServiceForTest creates a PasswordService with a low cost for
// use in tests of other packages. Do NOT use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Cost returns the configured work factor.
func (p *PasswordService) Cost() int {
	return p.cost
}

// Hash hashes plaintext with a fresh random salt.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}

	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored hash.
//
// An empty hash means the account has no password (OAuth-only) and yields
// (false, nil): such an account simply cannot log in with a password. A
// mismatch is also (false, nil). Only a broken hash or similar failure
// returns an error, wrapped in ErrHashing.
func (p *PasswordService) Verify(hash, plaintext string) (bool, error) {
	if hash == "" {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: comparing password hash: %w", ErrHashing, err)
	}
}

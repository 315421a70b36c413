package auth

import (
	"errors"
	"strings"
	"testing"
)

// =========================================================================
// HELPER
// =========================================================================

// newTestPasswordService returns a PasswordService with bcrypt cost 4,
// the minimum the library allows.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(4)
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestNewPasswordService_ZeroCostUsesDefault(t *testing.T) {
	if got := NewPasswordService(0).Cost(); got != DefaultCost {
		t.Errorf("Cost() = %d, want %d", got, DefaultCost)
	}
	if got := NewPasswordService(11).Cost(); got != 11 {
		t.Errorf("Cost() = %d, want 11", got)
	}
}

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	// bcrypt hashes always start with $2a$ or $2b$
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_RejectsPasswordOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	_, err := ps.Hash(strings.Repeat("a", 73))
	if !errors.Is(err, ErrHashing) {
		t.Fatalf("Hash() error = %v, want ErrHashing", err)
	}
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Hash() error = %v, want ErrPasswordTooLong", err)
	}
}

func TestHash_AcceptsPasswordExactly72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got error: %v", err)
	}
}

func TestHash_InvalidCostIsHashingError(t *testing.T) {
	ps := NewPasswordServiceForTest(99) // above bcrypt.MaxCost

	_, err := ps.Hash("password")
	if !errors.Is(err, ErrHashing) {
		t.Fatalf("Hash() error = %v, want ErrHashing", err)
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify_CorrectPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	ok, err := ps.Verify(hash, "correct-horse-battery-staple")
	if err != nil || !ok {
		t.Errorf("Verify() = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestVerify_WrongPasswordIsNotAnError(t *testing.T) {
	ps := newTestPasswordService()

	hash, _ := ps.Hash("the-real-password")

	ok, err := ps.Verify(hash, "the-wrong-password")
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil for a mismatch", err)
	}
	if ok {
		t.Fatal("Verify() = true for a wrong password")
	}
}

func TestVerify_EmptyHashMeansNoPassword(t *testing.T) {
	ps := newTestPasswordService()

	// OAuth-only accounts store no hash; verification is simply false.
	ok, err := ps.Verify("", "anything")
	if err != nil || ok {
		t.Errorf("Verify(\"\", ...) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestVerify_GarbageHashIsHashingError(t *testing.T) {
	ps := newTestPasswordService()

	ok, err := ps.Verify("not-a-valid-bcrypt-hash", "password")
	if ok {
		t.Fatal("Verify() = true for a garbage hash")
	}
	if !errors.Is(err, ErrHashing) {
		t.Fatalf("Verify() error = %v, want ErrHashing", err)
	}
}

// =========================================================================
// ROUND-TRIP TEST
// =========================================================================

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	cases := []struct {
		name     string
		password string
	}{
		{"simple alphanumeric", "hello123"},
		{"special characters", "p@$$w0rd!#%"},
		{"unicode", "пароль-密码"},
		{"whitespace", "  leading and trailing  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := ps.Hash(tc.password)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", tc.password, err)
			}

			ok, err := ps.Verify(hash, tc.password)
			if err != nil || !ok {
				t.Errorf("Verify() = (%v, %v) for %q", ok, err, tc.password)
			}
		})
	}
}

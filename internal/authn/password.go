package authn

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/autoshop/internal/autherr"
)

const (
	MinPasswordLength = 12

	// MaxPasswordLength is bcrypt's input limit in bytes.
	MaxPasswordLength = 72
)

// ValidatePassword checks a new password against the length policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", autherr.ErrInvalidRequest, MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", autherr.ErrInvalidRequest, MaxPasswordLength)
	}
	return nil
}

// HashPassword validates and hashes password with bcrypt at cost.
func HashPassword(password string, cost int) ([]byte, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// checkPassword reports whether password matches hash. Errors other than a
// mismatch are returned.
func checkPassword(hash []byte, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to compare password: %w", err)
	}
}

// newDummyHash returns a hash of a random password, compared against when
// the email is unknown so that both paths cost one bcrypt comparison.
func newDummyHash(cost int) ([]byte, error) {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return bcrypt.GenerateFromPassword(b, cost)
}

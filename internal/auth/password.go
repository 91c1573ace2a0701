package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted for new users.
const MinPasswordLength = 6

// HashPassword returns the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: need %d characters", ErrWeakPassword, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks password against a stored hash. Seeded accounts carry
// a locked hash that never verifies.
func VerifyPassword(hash, password string) error {
	if hash == "" || hash == LockedPassword {
		return ErrLockedAccount
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

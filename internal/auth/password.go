package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt hashes without truncation.
const MaxPasswordBytes = 72

var ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)

// CheckPasswordLength rejects empty passwords and ones bcrypt would truncate.
func CheckPasswordLength(password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword hashes an account password with bcrypt.
func HashPassword(password string) (string, error) {
	if err := CheckPasswordLength(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash reports whether password matches the stored hash.
// Over-long input never matches, so a truncated prefix cannot log in.
func CheckPasswordHash(password, hash string) bool {
	if len(password) > MaxPasswordBytes || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

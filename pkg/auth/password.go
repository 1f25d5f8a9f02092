package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"lexdocs/pkg/domain"
)

// ErrPasswordTooShort is returned when a password fails the minimum-length policy.
var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// ValidatePassword applies the registration password policy.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a stored hash. The external
// identity sentinel never matches, so externally managed accounts cannot be
// logged into with a password.
func CheckPassword(password, stored string) bool {
	if stored == "" || stored == domain.ExternalPasswordSentinel {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

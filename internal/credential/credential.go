// Package credential hashes and verifies staff passwords.
package credential

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/matthewhartstonge/argon2"
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("empty password")

// Hash returns an encoded argon2id hash with a random salt.
func Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	config := argon2.DefaultConfig()
	raw, err := config.Hash([]byte(password), nil)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(raw.Encode()), nil
}

// IsHashed reports whether stored is an encoded argon2 hash.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, "$argon2")
}

// Verify checks password against the stored credential. Rows written by the
// old spreadsheet tooling hold the password as plain text; those are
// compared in constant time. An empty stored credential never matches.
//
// An error means the stored hash is malformed, not that the password is
// wrong.
func Verify(stored, password string) (bool, error) {
	if stored == "" {
		return false, nil
	}
	if !IsHashed(stored) {
		return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, nil
	}

	raw, err := argon2.Decode([]byte(stored))
	if err != nil {
		return false, fmt.Errorf("decode password hash: %w", err)
	}
	ok, err := raw.Verify([]byte(password))
	if err != nil {
		return false, fmt.Errorf("verify password hash: %w", err)
	}
	return ok, nil
}

package user

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHasher is used when the caller not provide it's own
var DefaultHasher = BcryptHasher{}

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Bcrypt password hasher
// Password is pre hashed with sha256 so the bcrypt 72 byte limit not apply
type BcryptHasher struct{}

func (h BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], bcrypt.DefaultCost)
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:])
}

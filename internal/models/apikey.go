package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey stores only the SHA-256 digest of the secret. The plaintext key is
// shown to the user once at creation time and never persisted.
type APIKey struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string
	Digest     string
	CreatedAt  time.Time
	LastUsedAt *time.Time // nil until the key authenticates a request
	RevokedAt  *time.Time // nil while the key is active
}

func (k APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string
	Email          *string // nil for accounts without a verified email
	GoogleID       *string // nil unless the account is linked to Google
	IsAdmin        bool
}

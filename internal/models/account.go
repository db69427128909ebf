package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a per-user prepaid credit pool. Remaining credits are always
// derived from the two counters and never stored.
type Account struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	CreditsTotal int64
	CreditsUsed  int64
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

func (a Account) Remaining() int64 {
	return a.CreditsTotal - a.CreditsUsed
}

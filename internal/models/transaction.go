package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionKindConsume    = "consume"
	TransactionKindRefill     = "refill"
	TransactionKindAdjustment = "adjustment"
)

// Transaction is one append-only ledger entry. Amount is negative for
// consumption and positive for refills. BalanceAfter snapshots the remaining
// credits right after the entry was applied.
type Transaction struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Kind         string
	Amount       int64
	Description  string
	BalanceAfter int64
	CreatedAt    time.Time
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Estimate is the parsed result of one vision analysis, persisted as the
// user's history.
type Estimate struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	DishName    string
	Calories    decimal.Decimal
	ProteinsG   decimal.Decimal
	FatsG       decimal.Decimal
	CarbsG      decimal.Decimal
	WeightG     decimal.Decimal
	Confidence  decimal.Decimal
	SpentCredit int64
	CreatedAt   time.Time
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/models"
)

type EstimateRepo struct {
	DB DBTX
}

const createEstimate = `-- name: CreateEstimate
INSERT INTO estimates (id, user_id, created_at, dish_name, calories, proteins_g, fats_g, carbs_g, weight_g, confidence, spent_credit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, user_id, created_at, dish_name, calories, proteins_g, fats_g, carbs_g, weight_g, confidence, spent_credit
`

func (r *EstimateRepo) Create(ctx context.Context, estimate models.Estimate) (models.Estimate, error) {
	rows, _ := r.DB.Query(ctx, createEstimate,
		estimate.ID,
		estimate.UserID,
		estimate.CreatedAt,
		estimate.DishName,
		estimate.Calories,
		estimate.ProteinsG,
		estimate.FatsG,
		estimate.CarbsG,
		estimate.WeightG,
		estimate.Confidence,
		estimate.SpentCredit,
	)
	created, err := pgx.CollectOneRow(rows, rowToEstimate)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrUserNotFound
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const listEstimates = `-- name: ListEstimates
SELECT id, user_id, created_at, dish_name, calories, proteins_g, fats_g, carbs_g, weight_g, confidence, spent_credit
FROM estimates
WHERE user_id = $1
ORDER BY created_at DESC
`

func (r *EstimateRepo) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Estimate, error) {
	query := listEstimates
	args := []any{userID}

	if limit > 0 {
		query += "LIMIT $2"
		args = append(args, limit)
	}

	rows, _ := r.DB.Query(ctx, query, args...)
	estimates, err := pgx.CollectRows(rows, rowToEstimate)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return estimates, nil
}

func rowToEstimate(row pgx.CollectableRow) (models.Estimate, error) {
	var e models.Estimate
	err := row.Scan(&e.ID, &e.UserID, &e.CreatedAt, &e.DishName, &e.Calories, &e.ProteinsG, &e.FatsG, &e.CarbsG, &e.WeightG, &e.Confidence, &e.SpentCredit)
	return e, err
}

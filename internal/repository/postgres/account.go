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

type AccountRepo struct {
	DB DBTX
}

const createAccount = `-- name: CreateAccount
INSERT INTO credit_accounts (id, user_id, credits_total, credits_used)
VALUES ($1, $2, $3, 0)
RETURNING id, user_id, credits_total, credits_used, created_at, modified_at
`

func (r *AccountRepo) Create(ctx context.Context, userID uuid.UUID, creditsTotal int64) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, uuid.New(), userID, creditsTotal)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return account, fmt.Errorf("user credit account already exists: %w", err)
			case pgerrcode.CheckViolation:
				return account, fmt.Errorf("repo error: %w", apperrors.ErrInvalidCreditAmount)
			}
		}

		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByUserID = `-- name: GetAccountByUserID
SELECT id, user_id, credits_total, credits_used, created_at, modified_at
FROM credit_accounts
WHERE user_id = $1
`

// Get user account
// With forUpdate the row stays locked until the surrounding transaction
// ends, so concurrent spenders of one account line up while different
// accounts proceed in parallel
func (r *AccountRepo) Get(ctx context.Context, userID uuid.UUID, forUpdate bool) (models.Account, error) {
	query := getAccountByUserID
	if forUpdate {
		query += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, query, userID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const updateAccountCounters = `-- name: UpdateAccountCounters
UPDATE credit_accounts
SET credits_total = $2, credits_used = $3, modified_at = now()
WHERE id = $1
RETURNING id, user_id, credits_total, credits_used, created_at, modified_at
`

func (r *AccountRepo) UpdateCounters(ctx context.Context, accountID uuid.UUID, creditsTotal int64, creditsUsed int64) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, updateAccountCounters, accountID, creditsTotal, creditsUsed)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return account, fmt.Errorf("repo error: %w", apperrors.ErrInvalidCreditAmount)
		}

		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.CreditsTotal, &a.CreditsUsed, &a.CreatedAt, &a.ModifiedAt)
	return a, err
}

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

type TransactionRepo struct {
	DB DBTX
}

const createTransaction = `-- name: CreateTransaction
INSERT INTO credit_transactions (id, account_id, created_at, kind, amount, description, balance_after)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, account_id, created_at, kind, amount, description, balance_after
`

func (r *TransactionRepo) Create(ctx context.Context, transaction models.Transaction) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, createTransaction,
		transaction.ID,
		transaction.AccountID,
		transaction.CreatedAt,
		transaction.Kind,
		transaction.Amount,
		transaction.Description,
		transaction.BalanceAfter,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrAccountNotFound
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const listTransactions = `-- name: ListTransactions
SELECT id, account_id, created_at, kind, amount, description, balance_after
FROM credit_transactions
WHERE account_id = $1 AND ($2::text[] IS NULL OR kind = ANY($2))
ORDER BY created_at DESC
`

func (r *TransactionRepo) List(ctx context.Context, accountID uuid.UUID, kinds []string, limit int) ([]models.Transaction, error) {
	query := listTransactions
	args := []any{accountID, kinds}

	if len(kinds) == 0 {
		args[1] = nil
	}
	if limit > 0 {
		query += "LIMIT $3"
		args = append(args, limit)
	}

	rows, _ := r.DB.Query(ctx, query, args...)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.AccountID, &t.CreatedAt, &t.Kind, &t.Amount, &t.Description, &t.BalanceAfter)
	return t, err
}

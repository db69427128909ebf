package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, token, created_at, expires_at, used_at
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken, token.ID, token.UserID, token.Token, token.CreatedAt, token.ExpiresAt, token.UsedAt)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const getToken = `-- name: GetToken by string itself
SELECT id, user_id, token, created_at, expires_at, used_at
FROM refresh_tokens
WHERE token = $1
`

// Get token
// It should return result even it expired or used already
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenString)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const getAndMarkTokenUsed = `-- name: Mark token used if it not used
UPDATE refresh_tokens
SET used_at = COALESCE(used_at, $2)
WHERE token = $1
RETURNING id, user_id, token, created_at, expires_at, used_at
`

// Get token and mark it used
// Should not rewrite already used tokens: return error instead
func (r *RefreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	// Postgres keeps microseconds, so truncate before comparing round tripped value
	now := time.Now().Truncate(time.Microsecond)
	rows, _ := r.DB.Query(ctx, getAndMarkTokenUsed, tokenString, now)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil && token.UsedAt != nil && token.UsedAt.Equal(now):
		return token, nil
	case err == nil: // usedAt != now means the token is used already
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenIsUsed)
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	return t, err
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/models"
)

type APIKeyRepo struct {
	DB DBTX
}

const createAPIKey = `-- name: CreateAPIKey
INSERT INTO api_keys (id, user_id, created_at, name, digest)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, created_at, name, digest, last_used_at, revoked_at
`

func (r *APIKeyRepo) Create(ctx context.Context, key models.APIKey) (models.APIKey, error) {
	rows, _ := r.DB.Query(ctx, createAPIKey, key.ID, key.UserID, key.CreatedAt, key.Name, key.Digest)
	created, err := pgx.CollectOneRow(rows, rowToAPIKey)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getAPIKeyByDigest = `-- name: GetAPIKeyByDigest
SELECT id, user_id, created_at, name, digest, last_used_at, revoked_at
FROM api_keys
WHERE digest = $1
`

// Get key by the digest of its secret
// It should return result even the key is revoked, deciding is on caller
func (r *APIKeyRepo) GetByDigest(ctx context.Context, digest string) (models.APIKey, error) {
	rows, _ := r.DB.Query(ctx, getAPIKeyByDigest, digest)
	key, err := pgx.CollectOneRow(rows, rowToAPIKey)

	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, pgx.ErrNoRows):
		return key, apperrors.ErrAPIKeyNotFound
	default:
		return key, fmt.Errorf("db error: %w", err)
	}
}

const listAPIKeys = `-- name: ListAPIKeys
SELECT id, user_id, created_at, name, digest, last_used_at, revoked_at
FROM api_keys
WHERE user_id = $1
ORDER BY created_at DESC
`

func (r *APIKeyRepo) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	rows, _ := r.DB.Query(ctx, listAPIKeys, userID)
	keys, err := pgx.CollectRows(rows, rowToAPIKey)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return keys, nil
}

const touchAPIKey = `-- name: TouchAPIKey
UPDATE api_keys
SET last_used_at = $2
WHERE id = $1
`

func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, keyID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, touchAPIKey, keyID, time.Now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const revokeAPIKey = `-- name: Revoke key if it not revoked
UPDATE api_keys
SET revoked_at = COALESCE(revoked_at, $3)
WHERE id = $1 AND user_id = $2
RETURNING revoked_at
`

// Revoke user key
// Should not rewrite already revoked keys: return error instead
func (r *APIKeyRepo) Revoke(ctx context.Context, keyID uuid.UUID, userID uuid.UUID) (time.Time, error) {
	// Postgres keeps microseconds, so truncate before comparing round tripped value
	now := time.Now().Truncate(time.Microsecond)
	rows, _ := r.DB.Query(ctx, revokeAPIKey, keyID, userID, now)
	revokedAt, err := pgx.CollectOneRow(rows, pgx.RowTo[time.Time])

	switch {
	case err == nil && revokedAt.Equal(now):
		return revokedAt, nil
	case err == nil: // revokedAt != now means the key is revoked already
		return revokedAt, fmt.Errorf("repo error: %w", apperrors.ErrAPIKeyRevoked)
	case errors.Is(err, pgx.ErrNoRows):
		return revokedAt, fmt.Errorf("repo error: %w", apperrors.ErrAPIKeyNotFound)
	default:
		return revokedAt, fmt.Errorf("db error: %w", err)
	}
}

func rowToAPIKey(row pgx.CollectableRow) (models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.CreatedAt, &k.Name, &k.Digest, &k.LastUsedAt, &k.RevokedAt)
	return k, err
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/snapcal/snapcal/internal/models"
)

// Storage bundles every repository and lets callers run several of them in
// one database transaction.
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Account() AccountRepo
	Transaction() TransactionRepo
	APIKey() APIKeyRepo
	Estimate() EstimateRepo

	// Run fn with storage bound to a single transaction
	// Commit if fn returned nil, rollback otherwise
	InTx(ctx context.Context, fn func(s Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string) (models.User, error)

	// Create user linked to a Google account (no usable password)
	// If username, email or google id is taken has to return apperrors.ErrUserAlreadyExists
	CreateGoogleUser(ctx context.Context, username string, email string, googleID string) (models.User, error)

	// Get user by id, username or google id
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token as it provided
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token if it exists, no matter expired or used
	// If not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Return the token and mark it used in one shot
	// Must not rewrite 'usedAt' if the token is used already: return
	// apperrors.ErrRefreshTokenIsUsed instead
	GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error)
}

// Credit account repository interface
type AccountRepo interface {
	// Create account for the user with the initial amount of credits
	// Every user may have single account only
	Create(ctx context.Context, userID uuid.UUID, creditsTotal int64) (models.Account, error)

	// Get account by owner
	// If forUpdate is true the row is locked until the surrounding
	// transaction ends, so concurrent spenders of the same account wait
	// for each other
	// If account not found must return apperrors.ErrAccountNotFound
	Get(ctx context.Context, userID uuid.UUID, forUpdate bool) (models.Account, error)

	// Set both counters at once and bump 'modifiedAt'
	// Counters that break the account invariants (negative, used above
	// total) must return apperrors.ErrInvalidCreditAmount
	UpdateCounters(ctx context.Context, accountID uuid.UUID, creditsTotal int64, creditsUsed int64) (models.Account, error)
}

// Credit transaction repository interface
// Entries are append only: there is no update or delete
type TransactionRepo interface {
	// Create transaction as it provided
	// If account not found must return apperrors.ErrAccountNotFound
	Create(ctx context.Context, transaction models.Transaction) (models.Transaction, error)

	// List account transactions ordered from newest to oldest
	// Empty kinds means every kind, limit <= 0 means no limit
	List(ctx context.Context, accountID uuid.UUID, kinds []string, limit int) ([]models.Transaction, error)
}

// API key repository interface
type APIKeyRepo interface {
	// Save key as it provided
	Create(ctx context.Context, key models.APIKey) (models.APIKey, error)

	// Get key by the digest of its secret
	// If not found must return apperrors.ErrAPIKeyNotFound
	GetByDigest(ctx context.Context, digest string) (models.APIKey, error)

	// List user keys ordered from newest to oldest
	List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)

	// Record the moment the key authenticated a request
	TouchLastUsed(ctx context.Context, keyID uuid.UUID) error

	// Revoke user key
	// Must not rewrite 'revokedAt' if the key is revoked already: return
	// apperrors.ErrAPIKeyRevoked instead
	Revoke(ctx context.Context, keyID uuid.UUID, userID uuid.UUID) (revokedAt time.Time, err error)
}

// Estimate repository interface
type EstimateRepo interface {
	// Save estimate as it provided
	Create(ctx context.Context, estimate models.Estimate) (models.Estimate, error)

	// List user estimates ordered from newest to oldest
	// limit <= 0 means no limit
	List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Estimate, error)
}

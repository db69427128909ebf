package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/models"
	"github.com/snapcal/snapcal/internal/repository"
)

const (
	defaultHeaderName = "X-Api-Key"

	// Keys look like 'sk_<43 base64url chars>'
	secretPrefix  = "sk_"
	secretRandLen = 32
	maxNameLen    = 100
)

// API key service with sensible defaults
type Config struct {
	// Header to read the key from on requests
	// If not set than default is used
	HeaderName string
}

// Issues and authenticates per user API keys
// Only the sha256 digest of a secret is stored, the plaintext is returned
// to the caller once at creation time
type APIKeyService struct {
	headerName string

	// Storage to access long term data
	storage repository.Storage
}

func NewService(cfg Config, storage repository.Storage) *APIKeyService {
	if cfg.HeaderName == "" {
		cfg.HeaderName = defaultHeaderName
	}

	return &APIKeyService{
		headerName: cfg.HeaderName,
		storage:    storage,
	}
}

// Create named key for the user
// Returns the stored key and its plaintext secret: the only chance to see it
func (s *APIKeyService) Create(ctx context.Context, userID uuid.UUID, name string) (models.APIKey, string, error) {
	if name == "" || len(name) > maxNameLen {
		return models.APIKey{}, "", fmt.Errorf("key name must be 1..%d chars", maxNameLen)
	}

	secret, err := generateSecret()
	if err != nil {
		return models.APIKey{}, "", fmt.Errorf("can't generate key secret. Err: %w", err)
	}

	key, err := s.storage.APIKey().Create(ctx, models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Digest:    digest(secret),
		CreatedAt: time.Now().Truncate(time.Microsecond),
	})
	if err != nil {
		return models.APIKey{}, "", err
	}

	return key, secret, nil
}

// List user keys from newest to oldest
func (s *APIKeyService) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.storage.APIKey().List(ctx, userID)
}

// Revoke user key, revoking twice is an error
func (s *APIKeyService) Revoke(ctx context.Context, keyID uuid.UUID, userID uuid.UUID) error {
	_, err := s.storage.APIKey().Revoke(ctx, keyID, userID)
	return err
}

// Get request and return the key owner if a valid key provided or error
// Mirrors AuthService.Auth so both may guard the same routes
func (s *APIKeyService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	secret := r.Header.Get(s.headerName)
	if secret == "" {
		return user, fmt.Errorf("no '%s' header in request", s.headerName)
	}

	key, err := s.storage.APIKey().GetByDigest(ctx, digest(secret))
	if err != nil {
		return user, err
	}
	if key.Revoked() {
		return user, fmt.Errorf("auth failed. Err: %w", apperrors.ErrAPIKeyRevoked)
	}

	user, err = s.storage.User().GetUserByID(ctx, key.UserID)
	if err != nil {
		return user, fmt.Errorf("can't get key owner. Err: %w", err)
	}

	// Last used mark is best effort, auth must not fail because of it
	_ = s.storage.APIKey().TouchLastUsed(ctx, key.ID)

	return user, nil
}

func generateSecret() (string, error) {
	b := make([]byte, secretRandLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return secretPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

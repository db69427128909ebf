package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/models"
	"github.com/snapcal/snapcal/internal/repository"
)

const defaultInitialCredits = 100

// How many usernames to try when the wanted one is taken
const googleUsernameAttempts = 3

// User service with sensible defaults
type Config struct {
	// Hasher to hash or compare user passwords
	// If not set the default bcrypt hasher is used
	Hasher PasswordHasher

	// Credits granted to every new user account
	// If not set than default is used
	InitialCredits int64
}

type UserService struct {
	hasher PasswordHasher

	// Credits granted to every new user account
	initialCredits int64

	// Storage to access long term data
	storage repository.Storage
}

func NewService(cfg Config, storage repository.Storage) *UserService {
	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher
	}
	if cfg.InitialCredits == 0 {
		cfg.InitialCredits = defaultInitialCredits
	}

	return &UserService{
		hasher:         cfg.Hasher,
		initialCredits: cfg.InitialCredits,
		storage:        storage,
	}
}

// Create user and its credit account in single transaction
// The account starts with the initial credits grant and no transaction history
func (s *UserService) CreateUser(ctx context.Context, username string, password string) (models.User, error) {
	var user models.User

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error

		user, err = storage.User().CreateUser(ctx, username, hash)
		if err != nil {
			return fmt.Errorf("can't create user. Err: %w", err)
		}

		_, err = storage.Account().Create(ctx, user.ID, s.initialCredits)
		if err != nil {
			return fmt.Errorf("can't create credit account. Err: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *UserService) Login(ctx context.Context, username string, password string) (models.User, error) {
	// Ignore the lookup error: compare below fails for the empty user
	// and the caller gets the same ErrUserNotFound either way
	user, _ := s.storage.User().GetUserByUsername(ctx, username)

	err := s.hasher.Compare(user.HashedPassword, password)
	if err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.storage.User().GetUserByUsername(ctx, username)
}

// Return the user linked to the google account or create a new one
// New users get a username derived from the email and the same initial
// credits grant as password users
func (s *UserService) GetOrCreateGoogleUser(ctx context.Context, googleID string, email string) (models.User, error) {
	user, err := s.storage.User().GetUserByGoogleID(ctx, googleID)
	switch {
	case err == nil:
		return user, nil
	case !errors.Is(err, apperrors.ErrUserNotFound):
		return user, fmt.Errorf("can't get user. Err: %w", err)
	}

	username := usernameFromEmail(email)
	for i := 0; i < googleUsernameAttempts; i++ {
		err = s.storage.InTx(ctx, func(storage repository.Storage) error {
			var err error

			user, err = storage.User().CreateGoogleUser(ctx, username, email, googleID)
			if err != nil {
				return err
			}

			_, err = storage.Account().Create(ctx, user.ID, s.initialCredits)
			if err != nil {
				return fmt.Errorf("can't create credit account. Err: %w", err)
			}

			return nil
		})
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, apperrors.ErrUserAlreadyExists) {
			return models.User{}, fmt.Errorf("can't create user. Err: %w", err)
		}

		// Concurrent login may have linked the google account already
		if existing, getErr := s.storage.User().GetUserByGoogleID(ctx, googleID); getErr == nil {
			return existing, nil
		}

		// Username is taken by someone else, try a suffixed one
		username = usernameFromEmail(email) + "-" + randomSuffix()
	}

	return models.User{}, fmt.Errorf("can't create user. Err: %w", apperrors.ErrUserAlreadyExists)
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return strings.ToLower(local)
}

func randomSuffix() string {
	b := make([]byte, 2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

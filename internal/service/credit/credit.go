package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/models"
	"github.com/snapcal/snapcal/internal/repository"
)

const (
	defaultMaxCreditsTotal = 1000
	defaultActionCost      = 1
)

// Credit service with sensible defaults
type Config struct {
	// Hard cap for account credits_total
	// If not set than default is used
	MaxCreditsTotal int64

	// Cost of paid actions by name
	// Actions not listed cost DefaultCost
	Costs map[string]int64

	// If not set than default is used
	DefaultCost int64
}

// Keeps per user credit accounts and their append only transaction log
type CreditService struct {
	maxCreditsTotal int64
	costs           map[string]int64
	defaultCost     int64

	// Storage to access long term data
	storage repository.Storage
}

func NewService(cfg Config, storage repository.Storage) *CreditService {
	if cfg.MaxCreditsTotal == 0 {
		cfg.MaxCreditsTotal = defaultMaxCreditsTotal
	}
	if cfg.DefaultCost == 0 {
		cfg.DefaultCost = defaultActionCost
	}

	return &CreditService{
		maxCreditsTotal: cfg.MaxCreditsTotal,
		costs:           cfg.Costs,
		defaultCost:     cfg.DefaultCost,
		storage:         storage,
	}
}

// Cost of the named paid action
func (s *CreditService) CostOf(action string) int64 {
	if cost, ok := s.costs[action]; ok {
		return cost
	}
	return s.defaultCost
}

func (s *CreditService) GetAccount(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	return s.storage.Account().Get(ctx, userID, false)
}

// Spend amount of credits if the account still has them
// Check and spend run under a row lock so two concurrent consumers of one
// account can't both pass the check
func (s *CreditService) Consume(ctx context.Context, userID uuid.UUID, amount int64, description string) (models.Account, error) {
	var account models.Account

	if amount <= 0 {
		return account, apperrors.ErrInvalidCreditAmount
	}

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		locked, err := storage.Account().Get(ctx, userID, true)
		if err != nil {
			return err
		}

		if locked.Remaining() < amount {
			return apperrors.ErrInsufficientCredits
		}

		account, err = storage.Account().UpdateCounters(ctx, locked.ID, locked.CreditsTotal, locked.CreditsUsed+amount)
		if err != nil {
			return err
		}

		_, err = storage.Transaction().Create(ctx, models.Transaction{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Kind:         models.TransactionKindConsume,
			Amount:       -amount,
			Description:  description,
			BalanceAfter: account.Remaining(),
			CreatedAt:    time.Now().Truncate(time.Microsecond),
		})
		return err
	})
	if err != nil {
		return models.Account{}, err
	}

	return account, nil
}

// Grow the account total by amount, bounded by the configured cap
func (s *CreditService) AddCredits(ctx context.Context, userID uuid.UUID, amount int64, description string) (models.Account, error) {
	var account models.Account

	if amount <= 0 {
		return account, apperrors.ErrInvalidCreditAmount
	}

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		locked, err := storage.Account().Get(ctx, userID, true)
		if err != nil {
			return err
		}

		if locked.CreditsTotal+amount > s.maxCreditsTotal {
			return fmt.Errorf("cap is %d. Err: %w", s.maxCreditsTotal, apperrors.ErrCreditLimitExceeded)
		}

		account, err = storage.Account().UpdateCounters(ctx, locked.ID, locked.CreditsTotal+amount, locked.CreditsUsed)
		if err != nil {
			return err
		}

		_, err = storage.Transaction().Create(ctx, models.Transaction{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Kind:         models.TransactionKindRefill,
			Amount:       amount,
			Description:  description,
			BalanceAfter: account.Remaining(),
			CreatedAt:    time.Now().Truncate(time.Microsecond),
		})
		return err
	})
	if err != nil {
		return models.Account{}, err
	}

	return account, nil
}

// Zero the used counter so the whole total is spendable again
// Returns the updated account and how much was used before the reset
// The adjustment is always logged, even when nothing was used
func (s *CreditService) ResetUsed(ctx context.Context, userID uuid.UUID, description string) (models.Account, int64, error) {
	var account models.Account
	var previousUsed int64

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		locked, err := storage.Account().Get(ctx, userID, true)
		if err != nil {
			return err
		}
		previousUsed = locked.CreditsUsed

		account, err = storage.Account().UpdateCounters(ctx, locked.ID, locked.CreditsTotal, 0)
		if err != nil {
			return err
		}

		_, err = storage.Transaction().Create(ctx, models.Transaction{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Kind:         models.TransactionKindAdjustment,
			Amount:       previousUsed,
			Description:  description,
			BalanceAfter: account.Remaining(),
			CreatedAt:    time.Now().Truncate(time.Microsecond),
		})
		return err
	})
	if err != nil {
		return models.Account{}, 0, err
	}

	return account, previousUsed, nil
}

// List account transactions from newest to oldest
// Empty kinds means every kind, limit <= 0 means no limit
func (s *CreditService) History(ctx context.Context, userID uuid.UUID, kinds []string, limit int) ([]models.Transaction, error) {
	account, err := s.storage.Account().Get(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	return s.storage.Transaction().List(ctx, account.ID, kinds, limit)
}

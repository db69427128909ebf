package credit

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/models"
	"github.com/snapcal/snapcal/internal/repository"
	"github.com/snapcal/snapcal/internal/repository/postgres"
	"github.com/snapcal/snapcal/internal/testutil"
)

func TestCreditService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Create user and its credit account
	createUser := func(t *testing.T, storage repository.Storage, username string, total int64) models.User {
		user, err := storage.User().CreateUser(t.Context(), username, "hashed-password")
		require.NoError(t, err, "user should be created")

		_, err = storage.Account().Create(t.Context(), user.ID, total)
		require.NoError(t, err, "credit account should be created")

		return user
	}

	// Helper function to create CreditService within transaction
	inTx := func(t *testing.T, cfg Config, fn func(s *CreditService, storage repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fn(NewService(cfg, storage), storage)
		})
	}

	t.Run("new service defaults", func(t *testing.T) {
		s := NewService(Config{}, nil)

		require.Equal(t, int64(defaultMaxCreditsTotal), s.maxCreditsTotal, "default cap should be set")
		require.Equal(t, int64(defaultActionCost), s.defaultCost, "default action cost should be set")
	})

	t.Run("CostOf", func(t *testing.T) {
		s := NewService(Config{Costs: map[string]int64{"estimate": 3}}, nil)

		require.Equal(t, int64(3), s.CostOf("estimate"), "configured action cost should win")
		require.Equal(t, int64(1), s.CostOf("unknown"), "not listed action should cost the default")
	})

	t.Run("Consume", func(t *testing.T) {
		t.Run("consume ok", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "spender", 100)

				account, err := s.Consume(t.Context(), user.ID, 30, "estimate")

				require.NoError(t, err, "consume within remaining should be ok")
				require.Equal(t, int64(100), account.CreditsTotal, "total should not change on consume")
				require.Equal(t, int64(30), account.CreditsUsed)
				require.Equal(t, int64(70), account.Remaining())

				transactions, err := s.History(t.Context(), user.ID, nil, 0)
				require.NoError(t, err)
				require.Len(t, transactions, 1, "consume should be logged")
				require.Equal(t, models.TransactionKindConsume, transactions[0].Kind)
				require.Equal(t, int64(-30), transactions[0].Amount, "consume amount should be negative")
				require.Equal(t, "estimate", transactions[0].Description)
				require.Equal(t, int64(70), transactions[0].BalanceAfter)
			})
		})

		t.Run("insufficient credits fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "spender", 10)

				_, err := s.Consume(t.Context(), user.ID, 30, "estimate")

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrInsufficientCredits)

				account, err := s.GetAccount(t.Context(), user.ID)
				require.NoError(t, err)
				require.Zero(t, account.CreditsUsed, "failed consume should not spend anything")

				transactions, err := s.History(t.Context(), user.ID, nil, 0)
				require.NoError(t, err)
				require.Empty(t, transactions, "failed consume should not be logged")
			})
		})

		t.Run("consume down to zero then fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "spender", 2)

				_, err := s.Consume(t.Context(), user.ID, 1, "estimate")
				require.NoError(t, err)
				account, err := s.Consume(t.Context(), user.ID, 1, "estimate")
				require.NoError(t, err)
				require.Zero(t, account.Remaining(), "account should be fully spent")

				_, err = s.Consume(t.Context(), user.ID, 1, "estimate")

				require.ErrorIs(t, err, apperrors.ErrInsufficientCredits, "spent account should reject further consumes")
			})
		})

		t.Run("not positive amount fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "spender", 100)

				_, err := s.Consume(t.Context(), user.ID, 0, "estimate")
				require.ErrorIs(t, err, apperrors.ErrInvalidCreditAmount)

				_, err = s.Consume(t.Context(), user.ID, -5, "estimate")
				require.ErrorIs(t, err, apperrors.ErrInvalidCreditAmount)
			})
		})

		t.Run("missing account fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, _ repository.Storage) {
				_, err := s.Consume(t.Context(), uuid.New(), 1, "estimate")

				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})
	})

	t.Run("AddCredits", func(t *testing.T) {
		t.Run("refill ok", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "refilled", 100)
				_, err := s.Consume(t.Context(), user.ID, 40, "estimate")
				require.NoError(t, err)

				account, err := s.AddCredits(t.Context(), user.ID, 50, "manual refill")

				require.NoError(t, err)
				require.Equal(t, int64(150), account.CreditsTotal, "total should grow by the refill")
				require.Equal(t, int64(40), account.CreditsUsed, "used should not change on refill")
				require.Equal(t, int64(110), account.Remaining())

				transactions, err := s.History(t.Context(), user.ID, []string{models.TransactionKindRefill}, 0)
				require.NoError(t, err)
				require.Len(t, transactions, 1)
				require.Equal(t, int64(50), transactions[0].Amount, "refill amount should be positive")
				require.Equal(t, "manual refill", transactions[0].Description)
				require.Equal(t, int64(110), transactions[0].BalanceAfter)
			})
		})

		t.Run("over the cap fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "refilled", 990)

				_, err := s.AddCredits(t.Context(), user.ID, 20, "manual refill")

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrCreditLimitExceeded)

				account, err := s.GetAccount(t.Context(), user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(990), account.CreditsTotal, "failed refill should not change the total")

				transactions, err := s.History(t.Context(), user.ID, nil, 0)
				require.NoError(t, err)
				require.Empty(t, transactions, "failed refill should not be logged")
			})
		})

		t.Run("refill up to the cap ok", func(t *testing.T) {
			inTx(t, Config{MaxCreditsTotal: 120}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "refilled", 100)

				_, err := s.AddCredits(t.Context(), user.ID, 30, "manual refill")
				require.ErrorIs(t, err, apperrors.ErrCreditLimitExceeded, "configured cap should apply")

				account, err := s.AddCredits(t.Context(), user.ID, 20, "manual refill")
				require.NoError(t, err, "refill that lands exactly on the cap should be ok")
				require.Equal(t, int64(120), account.CreditsTotal)
			})
		})

		t.Run("not positive amount fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "refilled", 100)

				_, err := s.AddCredits(t.Context(), user.ID, 0, "manual refill")
				require.ErrorIs(t, err, apperrors.ErrInvalidCreditAmount)

				_, err = s.AddCredits(t.Context(), user.ID, -1, "manual refill")
				require.ErrorIs(t, err, apperrors.ErrInvalidCreditAmount)
			})
		})

		t.Run("missing account fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, _ repository.Storage) {
				_, err := s.AddCredits(t.Context(), uuid.New(), 10, "manual refill")

				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})
	})

	t.Run("ResetUsed", func(t *testing.T) {
		t.Run("reset ok", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "reset", 100)
				_, err := s.Consume(t.Context(), user.ID, 30, "estimate")
				require.NoError(t, err)

				account, previousUsed, err := s.ResetUsed(t.Context(), user.ID, "monthly reset")

				require.NoError(t, err)
				require.Equal(t, int64(30), previousUsed, "previous used should be reported")
				require.Zero(t, account.CreditsUsed, "used should be zeroed")
				require.Equal(t, int64(100), account.Remaining(), "whole total should be spendable again")

				transactions, err := s.History(t.Context(), user.ID, []string{models.TransactionKindAdjustment}, 0)
				require.NoError(t, err)
				require.Len(t, transactions, 1, "reset should be logged as adjustment")
				require.Equal(t, int64(30), transactions[0].Amount, "adjustment should give back what was used")
				require.Equal(t, int64(100), transactions[0].BalanceAfter)
			})
		})

		t.Run("reset with nothing used still logged", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "reset", 100)

				_, previousUsed, err := s.ResetUsed(t.Context(), user.ID, "monthly reset")

				require.NoError(t, err)
				require.Zero(t, previousUsed)

				transactions, err := s.History(t.Context(), user.ID, []string{models.TransactionKindAdjustment}, 0)
				require.NoError(t, err)
				require.Len(t, transactions, 1, "reset should be logged even when nothing was used")
				require.Zero(t, transactions[0].Amount)
			})
		})

		t.Run("missing account fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, _ repository.Storage) {
				_, _, err := s.ResetUsed(t.Context(), uuid.New(), "monthly reset")

				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})
	})

	t.Run("History", func(t *testing.T) {
		t.Run("newest first", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "history", 100)

				_, err := s.Consume(t.Context(), user.ID, 1, "first")
				require.NoError(t, err)
				_, err = s.Consume(t.Context(), user.ID, 1, "second")
				require.NoError(t, err)
				_, err = s.AddCredits(t.Context(), user.ID, 10, "third")
				require.NoError(t, err)

				transactions, err := s.History(t.Context(), user.ID, nil, 0)

				require.NoError(t, err)
				require.Len(t, transactions, 3)
				require.Equal(t, "third", transactions[0].Description)
				require.Equal(t, "second", transactions[1].Description)
				require.Equal(t, "first", transactions[2].Description)
			})
		})

		t.Run("limit and kind filter", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
				user := createUser(t, storage, "history", 100)

				_, err := s.Consume(t.Context(), user.ID, 1, "spend")
				require.NoError(t, err)
				_, err = s.AddCredits(t.Context(), user.ID, 10, "refill")
				require.NoError(t, err)

				limited, err := s.History(t.Context(), user.ID, nil, 1)
				require.NoError(t, err)
				require.Len(t, limited, 1, "limit should cut the list")
				require.Equal(t, "refill", limited[0].Description, "newest entry should survive the limit")

				consumes, err := s.History(t.Context(), user.ID, []string{models.TransactionKindConsume}, 0)
				require.NoError(t, err)
				require.Len(t, consumes, 1)
				require.Equal(t, models.TransactionKindConsume, consumes[0].Kind)
			})
		})

		t.Run("missing account fail", func(t *testing.T) {
			inTx(t, Config{}, func(s *CreditService, _ repository.Storage) {
				_, err := s.History(t.Context(), uuid.New(), nil, 0)

				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})
	})

	t.Run("transaction log replays to the account state", func(t *testing.T) {
		inTx(t, Config{}, func(s *CreditService, storage repository.Storage) {
			user := createUser(t, storage, "replayed", 100)

			_, err := s.Consume(t.Context(), user.ID, 25, "estimate")
			require.NoError(t, err)
			_, err = s.AddCredits(t.Context(), user.ID, 40, "promo")
			require.NoError(t, err)
			_, err = s.Consume(t.Context(), user.ID, 10, "estimate")
			require.NoError(t, err)
			_, _, err = s.ResetUsed(t.Context(), user.ID, "monthly reset")
			require.NoError(t, err)
			_, err = s.Consume(t.Context(), user.ID, 7, "estimate")
			require.NoError(t, err)

			account, err := s.GetAccount(t.Context(), user.ID)
			require.NoError(t, err)

			transactions, err := s.History(t.Context(), user.ID, nil, 0)
			require.NoError(t, err)

			// Initial remaining plus every signed amount lands on the current remaining
			replayed := int64(100)
			for _, tr := range transactions {
				replayed += tr.Amount
			}
			require.Equal(t, account.Remaining(), replayed, "replaying the log should reproduce the balance")
			require.Equal(t, account.Remaining(), transactions[0].BalanceAfter, "newest entry should carry the current balance")
		})
	})

	// Row lock serialization only shows up across real transactions, so this
	// one runs on the bare pool instead of a rolled back test transaction
	t.Run("concurrent consume stops at the limit", func(t *testing.T) {
		storage := postgres.NewStorage(pg.Pool)
		s := NewService(Config{}, storage)

		user := createUser(t, storage, "concurrent-spender", 5)

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Consume(t.Context(), user.ID, 1, "estimate")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		consumed := 0
		for err := range errs {
			if err == nil {
				consumed++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrInsufficientCredits, "the only expected failure is running out of credits")
		}
		require.Equal(t, 5, consumed, "exactly the available credits should be consumed")

		account, err := s.GetAccount(t.Context(), user.ID)
		require.NoError(t, err)
		require.Equal(t, int64(5), account.CreditsUsed)
		require.Zero(t, account.Remaining(), "account should end up fully spent")

		transactions, err := s.History(t.Context(), user.ID, nil, 0)
		require.NoError(t, err)
		require.Len(t, transactions, 5, "every successful consume should be logged")
	})
}

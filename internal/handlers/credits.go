package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/handlers/render"
	"github.com/snapcal/snapcal/internal/handlers/userctx"
	"github.com/snapcal/snapcal/internal/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func handleUserCredits(creditService creditService, l logger.Logger) http.Handler {
	type response struct {
		Total     int64 `json:"total"`
		Used      int64 `json:"used"`
		Remaining int64 `json:"remaining"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		account, err := creditService.GetAccount(r.Context(), user.ID)

		switch {
		case err == nil:
			render.JSON(w, response{
				Total:     account.CreditsTotal,
				Used:      account.CreditsUsed,
				Remaining: account.Remaining(),
			})
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Credit account not found", http.StatusNotFound)
		default:
			l.Error("Failed to get credit account", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleCreditHistory(creditService creditService, l logger.Logger) http.Handler {
	type transaction struct {
		ID           uuid.UUID `json:"id"`
		Kind         string    `json:"kind"`
		Amount       int64     `json:"amount"`
		Description  string    `json:"description"`
		BalanceAfter int64     `json:"balance_after"`
		CreatedAt    time.Time `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		limit, err := limitParam(r, defaultHistoryLimit, maxHistoryLimit)
		if err != nil {
			render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
			return
		}

		history, err := creditService.History(r.Context(), user.ID, nil, limit)

		switch {
		case err == nil:
			transactions := make([]transaction, 0, len(history))
			for _, tr := range history {
				transactions = append(transactions, transaction{
					ID:           tr.ID,
					Kind:         tr.Kind,
					Amount:       tr.Amount,
					Description:  tr.Description,
					BalanceAfter: tr.BalanceAfter,
					CreatedAt:    tr.CreatedAt,
				})
			}
			render.JSON(w, transactions)
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Credit account not found", http.StatusNotFound)
		default:
			l.Error("Failed to get credit history", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// Read 'limit' query param, fall back to def and clamp to max
func limitParam(r *http.Request, def int, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}

	if limit > max {
		limit = max
	}

	return limit, nil
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/handlers/render"
	"github.com/snapcal/snapcal/internal/logger"
)

func handleAdminAddCredits(creditService creditService, userService userService, l logger.Logger) http.Handler {
	type request struct {
		Username    string `json:"username" validate:"required"`
		Amount      int64  `json:"amount" validate:"required,gt=0"`
		Description string `json:"description" validate:"max=200"`
	}
	type response struct {
		Total     int64 `json:"total"`
		Remaining int64 `json:"remaining"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.GetUserByUsername(r.Context(), data.Username)
		if err != nil {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}

		account, err := creditService.AddCredits(r.Context(), user.ID, data.Amount, data.Description)

		switch {
		case err == nil:
			render.JSON(w, response{Total: account.CreditsTotal, Remaining: account.Remaining()})
		case errors.Is(err, apperrors.ErrCreditLimitExceeded):
			render.ServiceError(w, "Credit limit exceeded", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrInvalidCreditAmount):
			render.ServiceError(w, "Credit amount must be positive", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Credit account not found", http.StatusNotFound)
		default:
			l.Error("Failed to add credits", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleAdminResetCredits(creditService creditService, userService userService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required"`
	}
	type response struct {
		PreviousUsed int64 `json:"previous_used"`
		CurrentUsed  int64 `json:"current_used"`
		Remaining    int64 `json:"remaining"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.GetUserByUsername(r.Context(), data.Username)
		if err != nil {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}

		account, previousUsed, err := creditService.ResetUsed(r.Context(), user.ID, "admin reset")

		switch {
		case err == nil:
			render.JSON(w, response{
				PreviousUsed: previousUsed,
				CurrentUsed:  account.CreditsUsed,
				Remaining:    account.Remaining(),
			})
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Credit account not found", http.StatusNotFound)
		default:
			l.Error("Failed to reset credits", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

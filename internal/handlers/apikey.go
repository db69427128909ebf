package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/handlers/render"
	"github.com/snapcal/snapcal/internal/handlers/userctx"
	"github.com/snapcal/snapcal/internal/logger"
)

func handleCreateAPIKey(apikeyService apikeyService, l logger.Logger) http.Handler {
	type request struct {
		Name string `json:"name" validate:"required,min=1,max=100"`
	}
	type response struct {
		ID        uuid.UUID `json:"id"`
		Name      string    `json:"name"`
		Key       string    `json:"key"`
		CreatedAt time.Time `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		key, secret, err := apikeyService.Create(r.Context(), user.ID, data.Name)
		if err != nil {
			l.Error("Failed to create api key", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// The plaintext key is returned here and never again
		render.JSON(w, response{
			ID:        key.ID,
			Name:      key.Name,
			Key:       secret,
			CreatedAt: key.CreatedAt,
		})
	})
}

func handleListAPIKeys(apikeyService apikeyService, l logger.Logger) http.Handler {
	type apikey struct {
		ID         uuid.UUID  `json:"id"`
		Name       string     `json:"name"`
		CreatedAt  time.Time  `json:"created_at"`
		LastUsedAt *time.Time `json:"last_used_at,omitempty"`
		RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		keys, err := apikeyService.List(r.Context(), user.ID)
		if err != nil {
			l.Error("Failed to list api keys", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		out := make([]apikey, 0, len(keys))
		for _, k := range keys {
			out = append(out, apikey{
				ID:         k.ID,
				Name:       k.Name,
				CreatedAt:  k.CreatedAt,
				LastUsedAt: k.LastUsedAt,
				RevokedAt:  k.RevokedAt,
			})
		}

		render.JSON(w, out)
	})
}

func handleRevokeAPIKey(apikeyService apikeyService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		keyID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid key id", http.StatusBadRequest)
			return
		}

		err = apikeyService.Revoke(r.Context(), keyID, user.ID)

		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, apperrors.ErrAPIKeyNotFound):
			render.ServiceError(w, "Api key not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrAPIKeyRevoked):
			render.ServiceError(w, "Api key already revoked", http.StatusConflict)
		default:
			l.Error("Failed to revoke api key", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

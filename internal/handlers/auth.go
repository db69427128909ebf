package handlers

import (
	"errors"
	"net/http"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/handlers/render"
	"github.com/snapcal/snapcal/internal/logger"
)

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Register(r.Context(), data.Username, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				l.Error("Failed to register user", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokenPairToResponse(w, pair)
		render.JSON(w, response{Message: "User registered successfully"})
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Username, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found", http.StatusUnauthorized)
			default:
				l.Error("Failed to login user", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokenPairToResponse(w, pair)
		render.JSON(w, response{Message: "User logged in successfully"})
	})
}

func handleTokenRefresh(authService authService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefreshString(r)
		if err != nil {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		pair, err := authService.RefreshPair(r.Context(), refresh)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRefreshTokenExpired):
				render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
				render.ServiceError(w, "Refresh token already used", http.StatusUnauthorized)
			default:
				l.Debug("Failed to refresh tokens", "error", err)
				render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			}
			return
		}

		authService.SetTokenPairToResponse(w, pair)
		render.JSON(w, response{Message: "Tokens refreshed successfully"})
	})
}

func handleGoogleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		IDToken string `json:"id_token" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.LoginWithGoogle(r.Context(), data.IDToken)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrGoogleTokenInvalid):
				render.ServiceError(w, "Google token invalid", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrGoogleAuthNotConfigured):
				render.ServiceError(w, "Google sign in is not enabled", http.StatusNotImplemented)
			default:
				l.Error("Failed to login with google", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokenPairToResponse(w, pair)
		render.JSON(w, response{Message: "User logged in successfully"})
	})
}

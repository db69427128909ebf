package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapcal/snapcal/internal/handlers/middleware"
	"github.com/snapcal/snapcal/internal/handlers/render"
	"github.com/snapcal/snapcal/internal/logger"
	"github.com/snapcal/snapcal/internal/models"
	"github.com/snapcal/snapcal/internal/service/estimate"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	creditService creditService,
	estimateService estimateService,
	apikeyService apikeyService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	jwtAuth := middleware.AuthMiddleware(authService)
	anyAuth := middleware.AuthMiddleware(authService, apikeyService)
	adminOnly := middleware.AdminMiddleware()

	withAuth := func(h http.Handler) http.Handler { return jwtAuth(h) }
	withAnyAuth := func(h http.Handler) http.Handler { return anyAuth(h) }
	withAdmin := func(h http.Handler) http.Handler { return jwtAuth(adminOnly(h)) }

	auth := http.NewServeMux()
	auth.Handle("POST /register", handleRegister(authService, logger))
	auth.Handle("POST /login", handleLogin(authService, logger))
	auth.Handle("POST /refresh", handleTokenRefresh(authService, logger))
	auth.Handle("POST /google", handleGoogleLogin(authService, logger))

	apiuser := http.NewServeMux()
	apiuser.Handle("GET /me", withAuth(handleUserMe()))
	apiuser.Handle("GET /credits", withAuth(handleUserCredits(creditService, logger)))
	apiuser.Handle("GET /credits/history", withAuth(handleCreditHistory(creditService, logger)))
	apiuser.Handle("POST /estimate", withAnyAuth(handleCreateEstimate(estimateService, logger)))
	apiuser.Handle("GET /estimates", withAuth(handleListEstimates(estimateService, logger)))
	apiuser.Handle("POST /apikeys", withAuth(handleCreateAPIKey(apikeyService, logger)))
	apiuser.Handle("GET /apikeys", withAuth(handleListAPIKeys(apikeyService, logger)))
	apiuser.Handle("DELETE /apikeys/{id}", withAuth(handleRevokeAPIKey(apikeyService, logger)))

	apiadmin := http.NewServeMux()
	apiadmin.Handle("POST /credits/add", withAdmin(handleAdminAddCredits(creditService, userService, logger)))
	apiadmin.Handle("POST /credits/reset", withAdmin(handleAdminResetCredits(creditService, userService, logger)))

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", auth))
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", apiadmin))
	root.Handle("GET /health", handleHealth())
	root.Handle("GET /metrics", promhttp.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware(),
	)

	return handler
}

func handleHealth() http.Handler {
	type response struct {
		Status string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, response{Status: "ok"})
	})
}

type authService interface {
	// Register user with username and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if user not found
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Verify google id token and login the linked user
	LoginWithGoogle(ctx context.Context, idToken string) (models.TokenPair, error)

	// Set auth tokens (access, refresh) to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Get refresh token from request
	GetRefreshString(r *http.Request) (string, error)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type creditService interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (models.Account, error)
	AddCredits(ctx context.Context, userID uuid.UUID, amount int64, description string) (models.Account, error)
	ResetUsed(ctx context.Context, userID uuid.UUID, description string) (models.Account, int64, error)
	History(ctx context.Context, userID uuid.UUID, kinds []string, limit int) ([]models.Transaction, error)
}

type estimateService interface {
	EstimateFromPhoto(ctx context.Context, userID uuid.UUID, image []byte, mimeType string) (estimate.Result, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Estimate, error)
}

type apikeyService interface {
	Create(ctx context.Context, userID uuid.UUID, name string) (models.APIKey, string, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	Revoke(ctx context.Context, keyID uuid.UUID, userID uuid.UUID) error

	// Get request and return user if a valid api key provided
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type userService interface {
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

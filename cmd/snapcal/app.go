package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/snapcal/snapcal/internal/db"
	"github.com/snapcal/snapcal/internal/handlers"
	"github.com/snapcal/snapcal/internal/logger"
	"github.com/snapcal/snapcal/internal/repository/postgres"
	"github.com/snapcal/snapcal/internal/service/apikey"
	"github.com/snapcal/snapcal/internal/service/auth"
	"github.com/snapcal/snapcal/internal/service/auth/tokenmanager"
	"github.com/snapcal/snapcal/internal/service/credit"
	"github.com/snapcal/snapcal/internal/service/estimate"
	"github.com/snapcal/snapcal/internal/service/user"
	"github.com/snapcal/snapcal/internal/service/vision"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	userService := user.NewService(user.Config{InitialCredits: c.SignupCredits}, storage)
	creditService := credit.NewService(credit.Config{
		MaxCreditsTotal: c.MaxCredits,
		Costs:           map[string]int64{estimate.ActionName: c.EstimateCost},
	}, storage)

	authConfig := auth.Config{}
	if c.GoogleClientID != "" {
		authConfig.GoogleVerifier = auth.NewGoogleVerifier(c.GoogleClientID)
	}
	authService, err := auth.NewService(authConfig, tokenManager, userService)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	apikeyService := apikey.NewService(apikey.Config{}, storage)
	visionClient := vision.NewClient(vision.Config{
		BaseURL: c.VisionAPIURL,
		Model:   c.VisionModel,
		APIKey:  c.VisionAPIKey,
	}, logger)
	estimateService := estimate.NewService(creditService, visionClient, storage)

	mux := handlers.NewRouter(
		authService,
		creditService,
		estimateService,
		apikeyService,
		userService,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}

package e2e

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/snapcal/snapcal/internal/handlers"
	"github.com/snapcal/snapcal/internal/logger"
	"github.com/snapcal/snapcal/internal/repository"
	"github.com/snapcal/snapcal/internal/repository/postgres"
	"github.com/snapcal/snapcal/internal/service/apikey"
	"github.com/snapcal/snapcal/internal/service/auth"
	"github.com/snapcal/snapcal/internal/service/auth/tokenmanager"
	"github.com/snapcal/snapcal/internal/service/credit"
	"github.com/snapcal/snapcal/internal/service/estimate"
	"github.com/snapcal/snapcal/internal/service/user"
	"github.com/snapcal/snapcal/internal/service/vision"
	"github.com/snapcal/snapcal/internal/testutil"
)

// PNG file header, enough for http.DetectContentType to say image/png
var TestPhoto = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00}

// Vision stub wired into the test server, answers the same dish always
type StubVision struct {
	Analysis vision.Analysis
	Err      error

	// How many times Analyze was called
	Calls int
}

func (v *StubVision) Analyze(ctx context.Context, image []byte, mimeType string) (vision.Analysis, error) {
	v.Calls++
	if v.Err != nil {
		return vision.Analysis{}, v.Err
	}
	return v.Analysis, nil
}

type Services struct {
	Storage         repository.Storage
	AuthService     *auth.AuthService
	UserService     *user.UserService
	CreditService   *credit.CreditService
	APIKeyService   *apikey.APIKeyService
	EstimateService *estimate.EstimateService
	Vision          *StubVision
}

// Create db transaction and run server with that connection (one connection cause one transaction)
// The created transaction is rolled back when the test stops, so db remains unchanged
func ServeInTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.InTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)

		// Initialize services
		tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage)
		require.NoError(t, err, "token manager should be created without errors")

		us := user.NewService(user.Config{}, storage)
		as, err := auth.NewService(auth.Config{}, tokenManager, us)
		require.NoError(t, err, "auth service starting error", err)

		cs := credit.NewService(credit.Config{}, storage)
		ks := apikey.NewService(apikey.Config{}, storage)

		stub := &StubVision{Analysis: vision.Analysis{
			DishName:   "solyanka",
			Calories:   decimal.NewFromInt(320),
			ProteinsG:  decimal.NewFromInt(15),
			FatsG:      decimal.NewFromInt(14),
			CarbsG:     decimal.NewFromInt(25),
			WeightG:    decimal.NewFromInt(350),
			Confidence: decimal.NewFromFloat(0.75),
		}}
		es := estimate.NewService(cs, stub, storage)

		// Complete all together as router
		router := handlers.NewRouter(as, cs, es, ks, us, logger.NewNoOpLogger())

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{
			Storage:         storage,
			AuthService:     as,
			UserService:     us,
			CreditService:   cs,
			APIKeyService:   ks,
			EstimateService: es,
			Vision:          stub,
		})
	})
}

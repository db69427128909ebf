package integration

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snapcal/snapcal/tests/e2e"
)

// Services the test server was built with
type Services = e2e.Services

// Run test function against a server that lives in a rolled back transaction
func RunTx(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, services Services)) {
	e2e.ServeInTx(dbpool, t, func(_ pgx.Tx, srvURL string, services Services) {
		fn(srvURL, services)
	})
}

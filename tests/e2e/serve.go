package e2e

import (
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/avillegas/payticket/internal/handlers"
	"github.com/avillegas/payticket/internal/logger"
	"github.com/avillegas/payticket/internal/repository/postgres"
	"github.com/avillegas/payticket/internal/service/issuer"
	"github.com/avillegas/payticket/internal/service/verifier"
	"github.com/avillegas/payticket/internal/testutil"
)

type Services struct {
	Issuer   *issuer.Issuer
	Verifier *verifier.Verifier
}

// Create db transaction and run server with that connection (one connection cause one transaction)
// The created transaction passed to inner function: so, you can safely use testutil.WithTx with it
func ServeWithTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)

		// Initialize production services
		i, err := issuer.New(issuer.Config{}, storage, storage.Payments())
		require.NoError(t, err, "issuer should be created without errors")
		v, err := verifier.New(verifier.Config{}, storage.Tokens(), storage.Payments())
		require.NoError(t, err, "verifier should be created without errors")

		// Complete all together as router
		tokenHandler := handlers.NewToken(i, v, logger.NewNoOp())
		router := handlers.NewRouter(tokenHandler)

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{Issuer: i, Verifier: v})
	})
}

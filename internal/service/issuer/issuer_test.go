package issuer

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avillegas/payticket/internal/apperrors"
	"github.com/avillegas/payticket/internal/repository"
	"github.com/avillegas/payticket/internal/repository/postgres"
	"github.com/avillegas/payticket/internal/testutil"
)

var tokenValueRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestIssuer(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Helper function to create Issuer within transaction
	inTx := func(t *testing.T, cfg Config, fn func(i *Issuer, storage repository.Storage, tx pgx.Tx)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			issuer, err := New(cfg, storage, storage.Payments())
			require.NoError(t, err, "issuer should be created without errors")
			fn(issuer, storage, tx)
		})
	}

	t.Run("issue ok", func(t *testing.T) {
		inTx(t, Config{}, func(i *Issuer, _ repository.Storage, tx pgx.Tx) {
			paymentID := testutil.SeedPayment(t, tx, testutil.PaymentSeed{
				PayerName:      "Carla Mendez",
				FeeDescription: "Tuition March",
			})

			got, err := i.IssueOrReuse(t.Context(), paymentID, 0)

			require.NoError(t, err)
			assert.Regexp(t, tokenValueRe, got.Token.Value, "value must be 32 hex chars")
			assert.Equal(t, paymentID, got.Token.PaymentID)
			assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), got.Token.ExpiresAt, 5*time.Second, "default lifetime must be one year")
			assert.True(t, got.Token.ExpiresAt.After(got.Token.CreatedAt))
			assert.Contains(t, got.BriefInfo, "Carla Mendez")
			assert.Contains(t, got.BriefInfo, "Tuition March")
		})
	})

	t.Run("explicit ttl honored", func(t *testing.T) {
		inTx(t, Config{}, func(i *Issuer, _ repository.Storage, tx pgx.Tx) {
			paymentID := testutil.SeedPayment(t, tx, testutil.PaymentSeed{})

			got, err := i.IssueOrReuse(t.Context(), paymentID, 30*time.Minute)

			require.NoError(t, err)
			assert.WithinDuration(t, time.Now().Add(30*time.Minute), got.Token.ExpiresAt, 5*time.Second)
		})
	})

	t.Run("repeated issue reuses active token", func(t *testing.T) {
		inTx(t, Config{}, func(i *Issuer, _ repository.Storage, tx pgx.Tx) {
			paymentID := testutil.SeedPayment(t, tx, testutil.PaymentSeed{})

			first, err := i.IssueOrReuse(t.Context(), paymentID, 0)
			require.NoError(t, err)

			second, err := i.IssueOrReuse(t.Context(), paymentID, 0)
			require.NoError(t, err)

			assert.Equal(t, first.Token.Value, second.Token.Value, "issuance within the window must be idempotent")
			assert.Equal(t, first.Token.ID, second.Token.ID, "no second row may appear")
			assert.WithinDuration(t, first.Token.ExpiresAt, second.Token.ExpiresAt, 0, "reuse must not extend the window")
		})
	})

	t.Run("expired token replaced with fresh value", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			paymentID := testutil.SeedPayment(t, tx, testutil.PaymentSeed{})

			t0 := time.Now()
			early, err := New(Config{Now: func() time.Time { return t0 }}, storage, storage.Payments())
			require.NoError(t, err)
			late, err := New(Config{Now: func() time.Time { return t0.Add(2 * time.Hour) }}, storage, storage.Payments())
			require.NoError(t, err)

			first, err := early.IssueOrReuse(t.Context(), paymentID, time.Hour)
			require.NoError(t, err)

			second, err := late.IssueOrReuse(t.Context(), paymentID, time.Hour)
			require.NoError(t, err)

			assert.NotEqual(t, first.Token.Value, second.Token.Value, "a replacement token must carry a fresh value")

			history, err := storage.Tokens().ListByPayment(t.Context(), paymentID)
			require.NoError(t, err)
			assert.Len(t, history, 2, "the expired token stays as history")
		})
	})

	t.Run("payment not found", func(t *testing.T) {
		inTx(t, Config{}, func(i *Issuer, _ repository.Storage, tx pgx.Tx) {
			_, err := i.IssueOrReuse(t.Context(), 999, 0)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)
		})
	})

	t.Run("payment voided", func(t *testing.T) {
		inTx(t, Config{}, func(i *Issuer, storage repository.Storage, tx pgx.Tx) {
			paymentID := testutil.SeedPayment(t, tx, testutil.PaymentSeed{Voided: true})

			_, err := i.IssueOrReuse(t.Context(), paymentID, 0)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrPaymentVoided)

			history, listErr := storage.Tokens().ListByPayment(t.Context(), paymentID)
			require.NoError(t, listErr)
			assert.Empty(t, history, "no token may be created for a voided payment")
		})
	})

	t.Run("values unrelated to payment ids", func(t *testing.T) {
		inTx(t, Config{}, func(i *Issuer, _ repository.Storage, tx pgx.Tx) {
			values := make(map[string]bool)
			for range 20 {
				paymentID := testutil.SeedPayment(t, tx, testutil.PaymentSeed{})

				got, err := i.IssueOrReuse(t.Context(), paymentID, 0)
				require.NoError(t, err)

				assert.Regexp(t, tokenValueRe, got.Token.Value)
				assert.False(t, values[got.Token.Value], "values must never repeat across payments")
				values[got.Token.Value] = true
			}
		})
	})

	t.Run("concurrent issue creates single token", func(t *testing.T) {
		// Runs on the pool directly: advisory locks only serialize
		// competing issuers when each one holds its own connection.
		storage := postgres.NewStorage(pg.Pool)
		issuer, err := New(Config{}, storage, storage.Payments())
		require.NoError(t, err)

		paymentID := testutil.SeedPayment(t, pg.Pool, testutil.PaymentSeed{})

		const workers = 8
		values := make([]string, workers)
		errs := make([]error, workers)

		var wg sync.WaitGroup
		for w := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticket, err := issuer.IssueOrReuse(t.Context(), paymentID, 0)
				values[w], errs[w] = ticket.Token.Value, err
			}()
		}
		wg.Wait()

		for w := range workers {
			require.NoError(t, errs[w], "every concurrent issue call must succeed")
			assert.Equal(t, values[0], values[w], "all callers must observe the same token")
		}

		history, err := storage.Tokens().ListByPayment(t.Context(), paymentID)
		require.NoError(t, err)
		assert.Len(t, history, 1, "exactly one row may be created under contention")
	})
}

func Test_newValue(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool, 1000)
	for range 1000 {
		value, err := newValue()

		require.NoError(t, err)
		require.Regexp(t, tokenValueRe, value)
		require.False(t, seen[value], "collision over a large sample")
		seen[value] = true
	}
}

package tokens

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avillegas/payticket/internal/testutil"
	"github.com/avillegas/payticket/tests/e2e"
)

const (
	TokenValidateURL = "/api/tokens/validate"
)

func Test_TokenValidate(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	e2e.ServeWithTx(pg.Pool, t, func(tx pgx.Tx, srvURL string, s e2e.Services) {
		type Response struct {
			IsValid        bool             `json:"is_valid"`
			Message        string           `json:"message"`
			PaymentID      *int64           `json:"payment_id"`
			PayerName      *string          `json:"payer_name"`
			FeeDescription *string          `json:"fee_description"`
			Amount         *decimal.Decimal `json:"amount"`
			PaymentDate    *string          `json:"payment_date"`
		}

		validate := func(t *testing.T, token string) (int, Response) {
			t.Helper()

			resp, err := http.Post(srvURL+TokenValidateURL, "application/json",
				strings.NewReader(fmt.Sprintf(`{"token": %q}`, token)))
			require.NoError(t, err, "failed to send request")
			defer resp.Body.Close() // nolint:errcheck
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err, "failed to read response body")

			var response Response
			require.NoErrorf(t, json.Unmarshal(body, &response), "failed to unmarshal body: %s", string(body))
			return resp.StatusCode, response
		}

		t.Run("full issue then validate cycle", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				paymentID := testutil.SeedPayment(t, tx, testutil.PaymentSeed{
					PayerName:      "Elena Vargas",
					FeeDescription: "Tuition April",
					Amount:         decimal.RequireFromString("220.00"),
				})

				ticket, err := s.Issuer.IssueOrReuse(t.Context(), paymentID, 0)
				require.NoError(t, err)

				code, response := validate(t, ticket.Token.Value)

				require.Equal(t, http.StatusOK, code)
				assert.True(t, response.IsValid)
				require.NotNil(t, response.PaymentID)
				assert.Equal(t, paymentID, *response.PaymentID)
				assert.Equal(t, "Elena Vargas", *response.PayerName)
				assert.Equal(t, "Tuition April", *response.FeeDescription)
				assert.True(t, decimal.RequireFromString("220.00").Equal(*response.Amount))
				assert.NotEmpty(t, *response.PaymentDate)
			})
		})

		t.Run("garbage input never errors", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				for _, token := range []string{"", "scan-me", strings.Repeat("x", 200)} {
					code, response := validate(t, token)

					require.Equal(t, http.StatusOK, code, "malformed input is a classified outcome")
					assert.False(t, response.IsValid)
					assert.Contains(t, response.Message, "malformed")
					assert.Nil(t, response.PaymentID)
				}
			})
		})

		t.Run("unknown token reported as not found", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				code, response := validate(t, strings.Repeat("f", 32))

				require.Equal(t, http.StatusOK, code)
				assert.False(t, response.IsValid)
				assert.Contains(t, response.Message, "not found")
			})
		})

		t.Run("voided payment reported distinctly", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				paymentID := testutil.SeedPayment(t, tx, testutil.PaymentSeed{})
				ticket, err := s.Issuer.IssueOrReuse(t.Context(), paymentID, 0)
				require.NoError(t, err)

				_, err = tx.Exec(t.Context(), "UPDATE payments SET voided = true WHERE id = $1", paymentID)
				require.NoError(t, err)

				code, response := validate(t, ticket.Token.Value)

				require.Equal(t, http.StatusOK, code)
				assert.False(t, response.IsValid, "token for a voided payment must not read valid")
				assert.Contains(t, response.Message, "voided")
				assert.Nil(t, response.PayerName, "voided verdict must not expose the snapshot")
			})
		})
	})
}

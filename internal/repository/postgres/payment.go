package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avillegas/payticket/internal/apperrors"
	"github.com/avillegas/payticket/internal/models"
)

// PaymentRepo is the bundled repository.PaymentLookup reading the host
// system's payments table. Strictly read-only: payments are owned and
// mutated by the school administration application, not by this core.
type PaymentRepo struct {
	DB DBTX
}

const getPaymentSnapshot = `-- name: GetPaymentSnapshot
SELECT id, payer_name, fee_description, amount, payment_date, voided
FROM payments
WHERE id = $1
`

func (r *PaymentRepo) GetSnapshot(ctx context.Context, paymentID int64) (models.PaymentSnapshot, error) {
	rows, _ := r.DB.Query(ctx, getPaymentSnapshot, paymentID)
	snapshot, err := pgx.CollectOneRow(rows, rowToSnapshot)

	switch {
	case err == nil:
		return snapshot, nil
	case errors.Is(err, pgx.ErrNoRows):
		return snapshot, fmt.Errorf("repo error: %w", apperrors.ErrPaymentNotFound)
	default:
		return snapshot, fmt.Errorf("db error: %w", err)
	}
}

func rowToSnapshot(row pgx.CollectableRow) (models.PaymentSnapshot, error) {
	var s models.PaymentSnapshot
	err := row.Scan(&s.PaymentID, &s.PayerName, &s.FeeDescription, &s.Amount, &s.PaymentDate, &s.Voided)
	return s, err
}

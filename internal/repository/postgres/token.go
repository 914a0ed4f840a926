package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avillegas/payticket/internal/apperrors"
	"github.com/avillegas/payticket/internal/models"
)

type TokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveToken
INSERT INTO verification_tokens (id, payment_id, value, created_at, expires_at, used_at)
VALUES ($1, $2, $3, $4, $5, NULL)
RETURNING id, payment_id, value, created_at, expires_at, used_at
`

func (r *TokenRepo) Save(ctx context.Context, paymentID int64, value string, createdAt time.Time, expiresAt time.Time) (models.VerificationToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken, uuid.New(), paymentID, value, createdAt, expiresAt)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenValueTaken)
		}

		return token, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

const getTokenByValue = `-- name: GetTokenByValue
SELECT id, payment_id, value, created_at, expires_at, used_at
FROM verification_tokens
WHERE value = $1
`

// Return the token even if it expired or used already.
// Classifying the token state is the verifier's job, not the repo's.
func (r *TokenRepo) GetByValue(ctx context.Context, value string) (models.VerificationToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenByValue, value)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const getActiveTokenByPayment = `-- name: GetActiveTokenByPayment
SELECT id, payment_id, value, created_at, expires_at, used_at
FROM verification_tokens
WHERE payment_id = $1 AND expires_at > $2
ORDER BY created_at DESC
LIMIT 1
`

// The dedup query of the issuer: newest token still valid at asOf
func (r *TokenRepo) GetActiveByPayment(ctx context.Context, paymentID int64, asOf time.Time) (models.VerificationToken, error) {
	rows, _ := r.DB.Query(ctx, getActiveTokenByPayment, paymentID, asOf)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const listTokensByPayment = `-- name: ListTokensByPayment
SELECT id, payment_id, value, created_at, expires_at, used_at
FROM verification_tokens
WHERE payment_id = $1
ORDER BY created_at DESC
`

func (r *TokenRepo) ListByPayment(ctx context.Context, paymentID int64) ([]models.VerificationToken, error) {
	rows, _ := r.DB.Query(ctx, listTokensByPayment, paymentID)
	tokens, err := pgx.CollectRows(rows, rowToToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

const listExpiredTokens = `-- name: ListExpiredTokens
SELECT id, payment_id, value, created_at, expires_at, used_at
FROM verification_tokens
WHERE expires_at <= $1
ORDER BY expires_at
`

func (r *TokenRepo) ListExpired(ctx context.Context, asOf time.Time) ([]models.VerificationToken, error) {
	rows, _ := r.DB.Query(ctx, listExpiredTokens, asOf)
	tokens, err := pgx.CollectRows(rows, rowToToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

const listUnusedTokens = `-- name: ListUnusedTokens
SELECT id, payment_id, value, created_at, expires_at, used_at
FROM verification_tokens
WHERE used_at IS NULL
ORDER BY created_at
`

func (r *TokenRepo) ListUnused(ctx context.Context) ([]models.VerificationToken, error) {
	rows, _ := r.DB.Query(ctx, listUnusedTokens)
	tokens, err := pgx.CollectRows(rows, rowToToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

const markTokenUsed = `-- name: MarkTokenUsed
UPDATE verification_tokens
SET used_at = COALESCE(used_at, $2)
WHERE value = $1
RETURNING used_at
`

// Mark token as presented
// Must not rewrite used_at of an already presented token
func (r *TokenRepo) MarkUsed(ctx context.Context, value string) (time.Time, error) {
	// timestamptz keeps microseconds, so the value has to be truncated
	// before the round trip or the equality check below never matches
	now := time.Now().Truncate(time.Microsecond)
	rows, _ := r.DB.Query(ctx, markTokenUsed, value, now)
	usedAt, err := pgx.CollectOneRow(rows, pgx.RowTo[time.Time])

	switch {
	case err == nil && usedAt.Equal(now):
		return usedAt, nil
	case err == nil: // usedAt != now means the token was presented before
		return usedAt, fmt.Errorf("repo error: %w", apperrors.ErrTokenUsed)
	case errors.Is(err, pgx.ErrNoRows):
		return usedAt, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return usedAt, fmt.Errorf("db error: %w", err)
	}
}

const lockPayment = `-- name: LockPayment
SELECT pg_advisory_xact_lock($1)
`

// Serialize issuers working on the same payment. The lock is released
// when the surrounding transaction commits or rolls back, so this must
// be called through Storage.InTx.
func (r *TokenRepo) LockPayment(ctx context.Context, paymentID int64) error {
	_, err := r.DB.Exec(ctx, lockPayment, paymentID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func rowToToken(row pgx.CollectableRow) (models.VerificationToken, error) {
	var t models.VerificationToken
	err := row.Scan(&t.ID, &t.PaymentID, &t.Value, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	return t, err
}

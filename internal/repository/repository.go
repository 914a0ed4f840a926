package repository

import (
	"context"
	"time"

	"github.com/avillegas/payticket/internal/models"
)

// Verification token repository interface
type TokenRepo interface {
	// Save token with the given payment reference, value and window.
	// The surrogate id is assigned by the store.
	// If the value exists already must return apperrors.ErrTokenValueTaken
	Save(ctx context.Context, paymentID int64, value string, createdAt time.Time, expiresAt time.Time) (models.VerificationToken, error)

	// Return the token by its value even if it is expired or used
	// If no token exists must return apperrors.ErrTokenNotFound
	GetByValue(ctx context.Context, value string) (models.VerificationToken, error)

	// Return the newest token for the payment with expires_at > asOf
	// If none exists must return apperrors.ErrTokenNotFound
	GetActiveByPayment(ctx context.Context, paymentID int64, asOf time.Time) (models.VerificationToken, error)

	// Full token history for the payment, newest first
	ListByPayment(ctx context.Context, paymentID int64) ([]models.VerificationToken, error)

	// Tokens whose validity window closed at or before asOf.
	// Supports the external retention job, this core never prunes itself.
	ListExpired(ctx context.Context, asOf time.Time) ([]models.VerificationToken, error)

	// Tokens never presented so far. Audit query only.
	ListUnused(ctx context.Context) ([]models.VerificationToken, error)

	// Mark token as presented. Idempotent: an already set used_at is
	// kept and apperrors.ErrTokenUsed returned. Reserved for a future
	// single-use mode, validation does not call it.
	MarkUsed(ctx context.Context, value string) (time.Time, error)

	// Take a transaction scoped advisory lock for the payment.
	// Serializes the check-then-insert sequence of concurrent issuers.
	LockPayment(ctx context.Context, paymentID int64) error
}

// PaymentLookup is the injected read-only capability for resolving a
// payment into its display snapshot. The host system owns payments;
// this core only ever reads through this interface.
type PaymentLookup interface {
	// If the payment does not exist must return apperrors.ErrPaymentNotFound
	GetSnapshot(ctx context.Context, paymentID int64) (models.PaymentSnapshot, error)
}

type Storage interface {
	Tokens() TokenRepo
	Payments() PaymentLookup

	// Run fn within a single database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}

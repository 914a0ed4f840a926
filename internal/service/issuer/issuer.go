package issuer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/avillegas/payticket/internal/apperrors"
	"github.com/avillegas/payticket/internal/models"
	"github.com/avillegas/payticket/internal/repository"
)

// DefaultTokenTTL is the validity window of a printed receipt token
// when the caller does not ask for another one: 525600 minutes, one year.
const DefaultTokenTTL = 525600 * time.Minute

// Issuer config with sensible defaults
type Config struct {
	// Token lifetime used when a request carries no explicit TTL.
	// If not set DefaultTokenTTL is used.
	TTL time.Duration

	// Clock, overridable in tests
	Now func() time.Time
}

type Issuer struct {
	ttl time.Duration
	now func() time.Time

	storage  repository.Storage
	payments repository.PaymentLookup
}

func New(cfg Config, storage repository.Storage, payments repository.PaymentLookup) (*Issuer, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}
	if payments == nil {
		return nil, errors.New("payment lookup must not be nil")
	}

	if cfg.TTL == 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Issuer{
		ttl:      cfg.TTL,
		now:      cfg.Now,
		storage:  storage,
		payments: payments,
	}, nil
}

// IssueOrReuse returns the active verification token for the payment,
// minting a new one only when no unexpired token exists. Repeated calls
// within the validity window hand back the identical token value.
// ttl overrides the configured lifetime when positive.
//
// Returns apperrors.ErrPaymentNotFound if the payment does not exist and
// apperrors.ErrPaymentVoided if it exists but is cancelled.
func (i *Issuer) IssueOrReuse(ctx context.Context, paymentID int64, ttl time.Duration) (models.IssuedTicket, error) {
	var ticket models.IssuedTicket

	snapshot, err := i.payments.GetSnapshot(ctx, paymentID)
	if err != nil {
		return ticket, fmt.Errorf("error while resolving payment. Err: %w", err)
	}
	if snapshot.Voided {
		return ticket, fmt.Errorf("error while issuing token. Err: %w", apperrors.ErrPaymentVoided)
	}

	if ttl <= 0 {
		ttl = i.ttl
	}
	now := i.now().Truncate(time.Second)

	// The advisory lock serializes concurrent issuers for the same
	// payment, so the check-then-insert below cannot double mint.
	// It is transaction scoped, hence the InTx wrapper.
	var token models.VerificationToken
	err = i.storage.InTx(ctx, func(s repository.Storage) error {
		tokens := s.Tokens()

		if err := tokens.LockPayment(ctx, paymentID); err != nil {
			return err
		}

		existing, err := tokens.GetActiveByPayment(ctx, paymentID, now)
		switch {
		case err == nil:
			token = existing
			return nil
		case !errors.Is(err, apperrors.ErrTokenNotFound):
			return err
		}

		token, err = i.mint(ctx, s, paymentID, now, now.Add(ttl))
		return err
	})
	if err != nil {
		return ticket, fmt.Errorf("error while issuing token. Err: %w", err)
	}

	return models.IssuedTicket{
		Token:     token,
		BriefInfo: briefInfo(snapshot),
	}, nil
}

// History returns every token ever issued for the payment, newest
// first. Expired tokens are kept as history and show up here.
func (i *Issuer) History(ctx context.Context, paymentID int64) ([]models.VerificationToken, error) {
	if _, err := i.payments.GetSnapshot(ctx, paymentID); err != nil {
		return nil, fmt.Errorf("error while resolving payment. Err: %w", err)
	}

	tokens, err := i.storage.Tokens().ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("error while listing tokens. Err: %w", err)
	}

	return tokens, nil
}

// mint saves a token with a fresh random value. A value collision is
// astronomically unlikely at 128 bits but still must not surface as a
// duplicate record, so one retry with a new value is allowed. Every
// attempt runs in its own nested transaction: a unique violation
// poisons the transaction it happened in, the retry needs a clean one.
func (i *Issuer) mint(ctx context.Context, s repository.Storage, paymentID int64, createdAt time.Time, expiresAt time.Time) (models.VerificationToken, error) {
	var token models.VerificationToken

	for attempt := 0; attempt < 2; attempt++ {
		value, err := newValue()
		if err != nil {
			return token, err
		}

		err = s.InTx(ctx, func(inner repository.Storage) error {
			saved, err := inner.Tokens().Save(ctx, paymentID, value, createdAt, expiresAt)
			token = saved
			return err
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, apperrors.ErrTokenValueTaken) {
			return token, err
		}
	}

	return token, fmt.Errorf("token value collision survived retry: %w", apperrors.ErrTokenValueTaken)
}

// Generate random token value, 16 bytes hex encoded
func newValue() (string, error) {
	b := make([]byte, models.TokenValueBytesLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("error while generating token value. Err: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// One line payment summary handed out next to the token value
func briefInfo(s models.PaymentSnapshot) string {
	return fmt.Sprintf("%s / %s / %s / %s",
		s.PayerName,
		s.FeeDescription,
		s.Amount.StringFixed(2),
		s.PaymentDate.Format("2006-01-02"),
	)
}

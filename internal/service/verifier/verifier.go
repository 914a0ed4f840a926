package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avillegas/payticket/internal/apperrors"
	"github.com/avillegas/payticket/internal/models"
	"github.com/avillegas/payticket/internal/repository"
)

// Verifier config
type Config struct {
	// Clock, overridable in tests
	Now func() time.Time
}

// Verifier classifies presented token strings. It is read only: a check
// never consumes the token or moves its expiration, so any number of
// parties may verify the same receipt.
type Verifier struct {
	now func() time.Time

	tokens   repository.TokenRepo
	payments repository.PaymentLookup
}

func New(cfg Config, tokens repository.TokenRepo, payments repository.PaymentLookup) (*Verifier, error) {
	if tokens == nil {
		return nil, errors.New("token repo must not be nil")
	}
	if payments == nil {
		return nil, errors.New("payment lookup must not be nil")
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Verifier{
		now:      cfg.Now,
		tokens:   tokens,
		payments: payments,
	}, nil
}

// Validate classifies an arbitrary caller supplied string. Malformed,
// unknown, expired and voided-payment outcomes are verdicts, not errors;
// the returned error is reserved for store failures.
func (v *Verifier) Validate(ctx context.Context, value string) (models.Verification, error) {
	if !wellFormed(value) {
		return models.Verification{Verdict: models.VerdictMalformed}, nil
	}

	token, err := v.tokens.GetByValue(ctx, value)
	switch {
	case errors.Is(err, apperrors.ErrTokenNotFound):
		return models.Verification{Verdict: models.VerdictNotFound}, nil
	case err != nil:
		return models.Verification{}, fmt.Errorf("error while loading token. Err: %w", err)
	}

	if !token.Active(v.now()) {
		return models.Verification{Verdict: models.VerdictExpired}, nil
	}

	snapshot, err := v.payments.GetSnapshot(ctx, token.PaymentID)
	if err != nil {
		// A token always points at a recorded payment, so even
		// ErrPaymentNotFound here means the store is inconsistent
		return models.Verification{}, fmt.Errorf("error while loading payment snapshot. Err: %w", err)
	}

	if snapshot.Voided {
		return models.Verification{Verdict: models.VerdictPaymentVoided}, nil
	}

	return models.Verification{
		Verdict:  models.VerdictValid,
		Snapshot: &snapshot,
	}, nil
}

// wellFormed reports whether the string could have been minted by the
// issuer: exact length, lowercase hex alphabet. Anything else is not
// worth a database round trip.
func wellFormed(value string) bool {
	if len(value) != models.TokenValueLen {
		return false
	}

	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}

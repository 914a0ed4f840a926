package models

import (
	"time"

	"github.com/google/uuid"
)

// Token value format: 16 random bytes hex encoded
const (
	TokenValueBytesLen = 16
	TokenValueLen      = TokenValueBytesLen * 2
)

type VerificationToken struct {
	ID        uuid.UUID
	PaymentID int64
	Value     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil if token not presented yet
}

// Active reports whether the token is still within its validity window
func (t VerificationToken) Active(at time.Time) bool {
	return at.Before(t.ExpiresAt)
}

// Ticket returned to the caller on issuance
type IssuedTicket struct {
	Token     VerificationToken
	BriefInfo string
}

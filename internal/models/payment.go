package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentSnapshot is the flat read-only projection of a payment this
// subsystem receives from the host system. It is never written back.
type PaymentSnapshot struct {
	PaymentID      int64
	PayerName      string
	FeeDescription string
	Amount         decimal.Decimal
	PaymentDate    time.Time
	Voided         bool
}

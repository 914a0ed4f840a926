package models

// Verdict of a single token check. Every presented string maps to
// exactly one of these, "valid" included.
type Verdict string

const (
	VerdictValid         Verdict = "valid"
	VerdictMalformed     Verdict = "malformed"
	VerdictNotFound      Verdict = "not_found"
	VerdictExpired       Verdict = "expired"
	VerdictPaymentVoided Verdict = "payment_voided"
)

// Message returns the operator facing explanation of the verdict.
// Wording must keep "not found", "expired" and "voided" distinguishable
// for front desk troubleshooting.
func (v Verdict) Message() string {
	switch v {
	case VerdictValid:
		return "Token is valid, payment confirmed"
	case VerdictMalformed:
		return "Token is malformed"
	case VerdictNotFound:
		return "Token not found"
	case VerdictExpired:
		return "Token is expired, ask to regenerate the receipt"
	case VerdictPaymentVoided:
		return "Token points at a voided payment"
	default:
		return "Unknown verdict"
	}
}

type Verification struct {
	Verdict Verdict

	// Snapshot is set only for VerdictValid
	Snapshot *PaymentSnapshot
}

func (v Verification) Valid() bool {
	return v.Verdict == VerdictValid
}

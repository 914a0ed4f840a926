package apperrors

import (
	"errors"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPaymentVoided   = errors.New("payment is voided")

	ErrTokenNotFound   = errors.New("verification token not found")
	ErrTokenExpired    = errors.New("verification token is expired")
	ErrTokenMalformed  = errors.New("verification token is malformed")
	ErrTokenUsed       = errors.New("verification token is used")
	ErrTokenValueTaken = errors.New("verification token value already exists")
)

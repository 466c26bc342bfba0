package service

import (
	"errors"

	"eventpay/internal/repository"
)

var (
	// ErrNotFound is returned when no payment matches an id or pidx.
	ErrNotFound = repository.ErrNotFound

	// ErrActivePaymentExists is returned when a booking already has a
	// payment that has not failed.
	ErrActivePaymentExists = errors.New("booking already has an active payment")
)

// ValidationError reports an initiation request with missing or invalid fields.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// InitiationError is returned when the gateway refuses to open a payment.
// The payment row is kept and marked failed.
type InitiationError struct {
	PaymentID uint
	Reason    string
	Err       error
}

func (e *InitiationError) Error() string {
	return "payment initiation failed: " + e.Reason
}

func (e *InitiationError) Unwrap() error {
	return e.Err
}

package a2u

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by every operation of a Client whose
	// credentials were never set.
	ErrNotInitialized = errors.New("client not initialized")
	// ErrInvalidPaymentArgs wraps the validation failures of PaymentArgs.
	ErrInvalidPaymentArgs = errors.New("invalid payment args")
	// ErrDirectionMismatch indicates the payment does not flow in the direction
	// the caller declared when submitting it.
	ErrDirectionMismatch = errors.New("payment direction mismatch")
	// ErrAlreadySubmitted indicates a transaction is already linked to the
	// payment, submitting again could pay twice.
	ErrAlreadySubmitted = errors.New("payment already has a transaction")
	// ErrPaymentClosed indicates the payment is completed or cancelled.
	ErrPaymentClosed = errors.New("payment is already closed")
)

// ConfigurationError reports invalid or missing credentials.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

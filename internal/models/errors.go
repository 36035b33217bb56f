package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a booking failure for callers
type ErrorCode string

const (
	ErrCodeValidation         ErrorCode = "validation"
	ErrCodePricingUnavailable ErrorCode = "pricing_unavailable"
	ErrCodeReservationFailed  ErrorCode = "reservation_failed"
	ErrCodeCurrencyMismatch   ErrorCode = "currency_mismatch"
	ErrCodeMultiplierInvalid  ErrorCode = "multiplier_invalid"
	ErrCodeTotalInvalid       ErrorCode = "total_invalid"
	ErrCodePersistenceFailure ErrorCode = "persistence_failure"
	ErrCodePaymentFailure     ErrorCode = "payment_failure"
	ErrCodeNotFound           ErrorCode = "not_found"
	ErrCodeConflict           ErrorCode = "conflict"
	ErrCodeInvalidState       ErrorCode = "invalid_state"
	ErrCodeInternal           ErrorCode = "internal_error"
)

// SagaError is returned by the orchestrator for every expected failure
type SagaError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewSagaError creates a SagaError wrapping an optional cause
func NewSagaError(code ErrorCode, message string, err error) *SagaError {
	return &SagaError{Code: code, Message: message, Err: err}
}

func (e *SagaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SagaError) Unwrap() error {
	return e.Err
}

// ErrorCodeOf extracts the code of a SagaError anywhere in the chain
func ErrorCodeOf(err error) ErrorCode {
	var sagaErr *SagaError
	if errors.As(err, &sagaErr) {
		return sagaErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err is a not-found SagaError
func IsNotFound(err error) bool {
	return ErrorCodeOf(err) == ErrCodeNotFound
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRateUnavailable means the rate source could not provide a rate for
	// the requested currency and date.
	ErrRateUnavailable = errors.New("rate unavailable")

	// ErrNotFound is returned by repositories for missing rows.
	ErrNotFound = errors.New("not found")

	// ErrAmountOutOfRange means an amount or a derived total exceeds MaxAmount.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// ValidationError is a client-side precondition failure. No network call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError wraps a failed save. Message is safe to show to users.
type PersistenceError struct {
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err with the generic user-facing save message.
func NewPersistenceError(err error) *PersistenceError {
	return &PersistenceError{Message: "order could not be saved, please try again", Err: err}
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPreconditionNotMet means a stage advance was attempted out of
	// order. Nothing is charged and nothing is dispatched.
	ErrPreconditionNotMet = errors.New("stage precondition not met")

	// ErrInsufficientBalance means a charge would take the user's balance
	// below zero. No ledger entry is written.
	ErrInsufficientBalance = errors.New("insufficient credit balance")

	// ErrConcurrencyConflict means a compare-and-swap on persisted state
	// lost a race. The caller should re-read and retry the operation.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	ErrJobNotFound     = errors.New("job not found")
	ErrVariantNotFound = errors.New("batch variant not found")
)

// ProviderSubmitError wraps a failed provider submit. The charge for the
// attempt has already been reversed when this surfaces; the caller may retry.
type ProviderSubmitError struct {
	Kind  ProviderKind
	Cause error
}

func (e *ProviderSubmitError) Error() string {
	return fmt.Sprintf("%s provider submit failed: %v", e.Kind, e.Cause)
}

func (e *ProviderSubmitError) Unwrap() error {
	return e.Cause
}

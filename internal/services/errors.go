package services

import (
	"errors"
)

// Sentinel errors for the financial core. Handlers and callers classify with
// errors.Is; wrap with fmt.Errorf("...: %w", err) to add context.
var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHold     = errors.New("insufficient hold balance")
	ErrAlreadyProcessed     = errors.New("idempotency key already used")
	ErrInvalidState         = errors.New("illegal transaction state transition")
	ErrDistributionMismatch = errors.New("distribution shares do not sum to pool")
	ErrChainValidation      = errors.New("commission chain failed validation")
	ErrConcurrencyConflict  = errors.New("wallet version conflict")
)

// Retryable reports whether the caller may resubmit the same operation.
// Only optimistic-concurrency conflicts qualify; everything else is a
// definitive outcome.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// Package services defines the business logic of credit metering and PDF
// operation execution. This file centralizes the service-level error values
// so that they can be returned by service methods and checked by callers with
// errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Caller errors. Terminal, never retried.
var (
	// ErrUnknownOperation is returned when an operation id is not in the catalog.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrMissingInput is returned when a required storage path or document id
	// is absent.
	ErrMissingInput = errors.New("missing input")

	// ErrForbidden is returned when a storage path lies outside the caller's
	// upload namespace.
	ErrForbidden = errors.New("storage path not owned by user")

	// ErrInvalidQuantity is returned when a quantity exceeds MaxQuantity.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidAttributes is returned when metadata attributes exceed their bounds.
	ErrInvalidAttributes = errors.New("invalid metadata attributes")

	// ErrInvalidStatus is returned for an unknown job status filter.
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrUnknownPack is returned when a credit pack id is not in the catalog.
	ErrUnknownPack = errors.New("unknown credit pack")
)

// ErrInsufficientCredits is returned when the balance does not cover the cost.
// No ledger entry is written. Clients should route the user to a top-up flow.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Job lifecycle errors.
var (
	// ErrJobNotFound indicates that the job does not exist or is not visible
	// to the caller.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinalized is returned when a different outcome is reported for a
	// job that already reached a terminal state.
	ErrJobFinalized = errors.New("job already finalized")
)

// Ledger errors.
var (
	// ErrEntryNotFound is returned when a ledger entry does not exist for the user.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrNotRefundable is returned when refunding an entry that is not a debit.
	ErrNotRefundable = errors.New("entry is not refundable")

	// ErrDuplicateReference is returned when a purchase reference was already
	// granted to a different user.
	ErrDuplicateReference = errors.New("external reference already used")
)

// Infrastructure errors. Retryable.
var (
	// ErrPersistence wraps a failed durable read or write. When returned from
	// a debit the operation must be treated as not authorized.
	ErrPersistence = errors.New("persistence error")

	// ErrConcurrencyConflict is returned when the per-user lock could not be
	// acquired in time or a concurrent writer won a state transition.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// persistence wraps err as ErrPersistence unless it already carries a
// service sentinel.
func persistence(err error) error {
	if err == nil || isServiceError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func isServiceError(err error) bool {
	for _, s := range []error{
		ErrUnknownOperation, ErrMissingInput, ErrForbidden, ErrInvalidQuantity,
		ErrInvalidAttributes, ErrInvalidStatus, ErrUnknownPack, ErrInsufficientCredits,
		ErrJobNotFound, ErrJobFinalized, ErrEntryNotFound, ErrNotRefundable,
		ErrDuplicateReference, ErrPersistence, ErrConcurrencyConflict,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

/*
errors.go - Centralized error types for the report lifecycle

PURPOSE:
  All domain error types in one place. Callers distinguish three kinds:

  1. Validation errors - Business rule violations (ownership, transition
     guards, missing entries). Surfaced directly, never retried.
  2. Infrastructure errors - Ledger store/process failures. Retry-safe
     because the lock path is idempotent (see lock.go).
  3. Integrity violations - The ledger's anti-rewrite guard is missing or
     altered. Fatal; defined in the ledger package, classified here.

USAGE:
  if cra.IsValidation(err) { ... 4xx ... }
  if cra.IsRetryable(err)  { ... caller may retry ... }

SEE ALSO:
  - lifecycle.go: Returns the validation errors
  - lock.go:      Normalizes ledger failures
  - ledger/errors.go: Infrastructure and integrity error types
*/
package cra

import (
	"errors"

	"github.com/mickeymick25/foresy-sub002/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrReportNotFound is returned when the referenced report doesn't exist
	// or is soft-deleted.
	ErrReportNotFound = errors.New("report not found")

	// ErrEntryNotFound is returned when the referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrNotOwner is returned when the actor is not the report's creator.
	ErrNotOwner = errors.New("actor is not the report owner")

	// ErrInvalidTransition is returned when the report's current status does
	// not allow the requested transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyLocked is returned when locking a report that is locked.
	ErrAlreadyLocked = errors.New("report already locked")

	// ErrNoActiveEntries is returned when submitting a report with zero
	// active entries.
	ErrNoActiveEntries = errors.New("report has no active entries")

	// ErrReportImmutable is returned when mutating a report or its entries
	// after it left draft.
	ErrReportImmutable = errors.New("report is no longer editable")

	// ErrDuplicatePeriod is returned when a creator already has a report for
	// the requested period.
	ErrDuplicatePeriod = errors.New("report already exists for this period")

	// ErrInvalidInput is returned for malformed domain input (bad period,
	// non-positive quantity, empty ids).
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError explains which transition was refused and why.
type TransitionError struct {
	ReportID string
	From     Status
	To       Status
}

func (e *TransitionError) Error() string {
	return "cannot move report " + e.ReportID + " from " + string(e.From) + " to " + string(e.To)
}

func (e *TransitionError) Unwrap() error {
	if e.From == StatusLocked {
		return ErrAlreadyLocked
	}
	return ErrInvalidTransition
}

// OwnershipError identifies the mismatched actor.
type OwnershipError struct {
	ReportID string
	ActorID  string
}

func (e *OwnershipError) Error() string {
	return "actor " + e.ActorID + " does not own report " + e.ReportID
}

func (e *OwnershipError) Unwrap() error { return ErrNotOwner }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsValidation reports whether err is a business-rule violation that should
// surface to the caller unchanged and must never be auto-retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadyLocked) ||
		errors.Is(err, ErrNoActiveEntries) ||
		errors.Is(err, ErrReportImmutable) ||
		errors.Is(err, ErrDuplicatePeriod) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound reports whether err indicates a missing report or entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReportNotFound) || errors.Is(err, ErrEntryNotFound)
}

// IsRetryable reports whether a failed call may be retried safely. Only
// ledger infrastructure faults qualify: the idempotent lock path guarantees
// a retry never produces a second commit. Integrity violations are fatal
// and not retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ledger.ErrUnavailable) && !errors.Is(err, ledger.ErrIntegrityViolation)
}

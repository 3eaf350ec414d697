/*
errors.go - Error types for the ledger layer

PURPOSE:
  Two failure kinds leave this package:

  1. Infrastructure faults - missing binary, non-zero exit, timeout,
     unreachable store. Wrapped in InfraError so raw process output never
     becomes the error message a caller matches on. Retry-safe for callers
     because the lock path is idempotent.
  2. Integrity violations - the anti-rewrite guard was missing or altered
     when a commit was attempted. Fatal: the audit trail's trust assumption
     is broken, the commit is aborted, nothing is written.

USAGE:
  if errors.Is(err, ledger.ErrIntegrityViolation) { ... alert ... }
  if errors.Is(err, ledger.ErrUnavailable)        { ... retry later ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrUnavailable is the root of every infrastructure fault: the external
	// versioning binary failed, timed out, or the store is unreachable.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrIntegrityViolation is returned when the anti-rewrite guard is not
	// set at commit time. The store may have been tampered with since
	// initialization. Fatal, never retried.
	ErrIntegrityViolation = errors.New("ledger integrity violation: anti-rewrite guard not set")

	// ErrCleanupRefused is returned when Cleanup is invoked in production
	// without force.
	ErrCleanupRefused = errors.New("ledger cleanup refused in production")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InfraError wraps an external-process failure with the operation that
// triggered it. Unwraps to ErrUnavailable so callers classify it with a
// single errors.Is check.
type InfraError struct {
	Op  string // e.g. "init", "commit", "log"
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error { return ErrUnavailable }

// Cause exposes the underlying process error for logging.
func (e *InfraError) Cause() error { return e.Err }

func infra(op string, err error) error {
	return &InfraError{Op: op, Err: err}
}

/*
lifecycle.go - The report state machine

PURPOSE:
  Exposes Submit and Lock to callers and applies the transition guards:

    draft ──submit──▶ submitted ──lock──▶ locked (terminal)

  No transition reverses. Guards run before any mutation, so a failed guard
  never leaves partial state and is safely retryable.

GUARDS:
  submit: actor owns report, status == draft, ≥1 active entry
  lock:   actor owns report, status == submitted (locked → AlreadyLocked)

SIDE EFFECTS:
  submit recomputes totals and persists the new status atomically.
  lock recomputes totals and delegates the commit-and-transition to the
  Locker (lock.go), which owns ledger idempotency and atomicity.

ERROR POLICY:
  Validation failures map to the typed errors in errors.go. Infrastructure
  faults from the ledger pass through untouched: swallowing one could
  leave a report "submitted" forever, or mask a failed lock as successful.
*/
package cra

import (
	"context"
	"fmt"
	"time"
)

// Service is the lifecycle state machine over a report store.
type Service struct {
	store  TxStore
	locker *Locker
	now    func() time.Time
}

// NewService wires the state machine to its store and lock orchestrator.
func NewService(store TxStore, locker *Locker) *Service {
	return &Service{store: store, locker: locker, now: time.Now}
}

// LockResult is what a successful lock returns: the final snapshot plus
// the ledger commit metadata.
type LockResult struct {
	Report *ReportSnapshot
	Commit *CommitMeta
}

// CommitMeta mirrors the ledger commit identity for callers without
// exposing the ledger package types across the API boundary.
type CommitMeta struct {
	Hash      string
	Message   string
	Timestamp time.Time
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit moves a draft report to submitted. Totals are recomputed from the
// active entries immediately before the transition.
func (s *Service) Submit(ctx context.Context, reportID, actorID string) (*ReportSnapshot, error) {
	report, err := s.loadOwned(ctx, reportID, actorID)
	if err != nil {
		return nil, err
	}

	if report.Status != StatusDraft {
		return nil, &TransitionError{ReportID: report.ID, From: report.Status, To: StatusSubmitted}
	}

	// Entries are read and totals recomputed inside the transaction that
	// persists the transition, so a concurrent entry change can never leave
	// a submitted report whose totals lag its entry set.
	err = s.store.WithTx(ctx, func(tx Store) error {
		entries, err := tx.ActiveEntries(ctx, report.ID)
		if err != nil {
			return fmt.Errorf("loading entries for %s: %w", report.ID, err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("report %s: %w", report.ID, ErrNoActiveEntries)
		}

		Recalculate(entries).Apply(report)
		report.Status = StatusSubmitted
		report.UpdatedAt = s.now().UTC()

		if err := tx.UpdateReport(ctx, report); err != nil {
			return fmt.Errorf("persisting submit of %s: %w", report.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return Snapshot(report), nil
}

// =============================================================================
// LOCK
// =============================================================================

// Lock moves a submitted report to locked, atomically with the ledger
// commit. Returns the final snapshot and the commit metadata.
func (s *Service) Lock(ctx context.Context, reportID, actorID string) (*LockResult, error) {
	report, err := s.loadOwned(ctx, reportID, actorID)
	if err != nil {
		return nil, err
	}

	if report.Status == StatusLocked {
		return nil, fmt.Errorf("report %s: %w", report.ID, ErrAlreadyLocked)
	}
	if report.Status != StatusSubmitted {
		return nil, &TransitionError{ReportID: report.ID, From: report.Status, To: StatusLocked}
	}

	return s.locker.CommitLock(ctx, report)
}

// =============================================================================
// HELPERS
// =============================================================================

// loadOwned fetches an active report and checks ownership. Guard order:
// existence first, then ownership, then status (in the callers).
func (s *Service) loadOwned(ctx context.Context, reportID, actorID string) (*ActivityReport, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil || !report.Active() {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrReportNotFound)
	}
	if !report.OwnedBy(actorID) {
		return nil, &OwnershipError{ReportID: reportID, ActorID: actorID}
	}
	return report, nil
}

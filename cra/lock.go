/*
lock.go - Lock orchestration: ledger commit + status transition, atomically

PURPOSE:
  Locking is the one operation where the relational store and the external
  ledger must never disagree. The Locker guarantees:

  - A report never becomes "locked" without a corresponding ledger commit
    (commit failure rolls the transaction back).
  - Exactly one commit exists per locked report: a retry finds the existing
    commit and finishes the transition instead of committing again.

SEQUENCE (CommitLock):
  1. Precondition: the report is submitted and persisted
  2. EnsureInitialized on the ledger
  3. Idempotency check: existing commit → reuse it, no new commit
  4. Recompute totals, build the canonical payload
  5. Within a single relational transaction: CreateCommit, then persist
     status = locked; any commit error rolls the transaction back
  6. Return {snapshot, commit metadata}

ERROR CLASSIFICATION:
  Every repository failure (including an integrity violation) reaches the
  caller as an infrastructure fault, distinct from the validation errors of
  lifecycle.go. Retrying is safe: step 3 prevents duplicate commits.
  There is deliberately no internal retry or backoff.
*/
package cra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mickeymick25/foresy-sub002/ledger"
)

// Locker orchestrates the commit-and-transition step of Lock.
type Locker struct {
	store TxStore
	repo  ledger.Repository
	now   func() time.Time
}

// NewLocker wires the orchestrator to the relational store and the ledger.
func NewLocker(store TxStore, repo ledger.Repository) *Locker {
	return &Locker{store: store, repo: repo, now: time.Now}
}

// CommitLock performs the lock side effect for an already-guarded report.
// The caller (lifecycle.go) has verified ownership and submitted status;
// the precondition here defends against being invoked for drafts.
func (lk *Locker) CommitLock(ctx context.Context, report *ActivityReport) (*LockResult, error) {
	if report.Status != StatusSubmitted {
		return nil, &TransitionError{ReportID: report.ID, From: report.Status, To: StatusLocked}
	}

	if err := lk.repo.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	exists, err := lk.repo.CommitExists(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return lk.finishWithExisting(ctx, report)
	}

	lockedAt := lk.now().UTC()
	var info *ledger.CommitInfo
	raced := false

	err = lk.store.WithTx(ctx, func(tx Store) error {
		fresh, err := tx.GetReport(ctx, report.ID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fmt.Errorf("report %s: %w", report.ID, ErrReportNotFound)
		}
		if fresh.Status == StatusLocked {
			// A concurrent lock won the row; reuse its commit below.
			raced = true
			*report = *fresh
			return nil
		}

		entries, err := tx.ActiveEntries(ctx, fresh.ID)
		if err != nil {
			return err
		}
		assignmentIDs, err := tx.AssignmentIDs(ctx, fresh.ID)
		if err != nil {
			return err
		}

		// Totals are recomputed at the moment of locking; the payload can
		// never disagree with what is persisted.
		Recalculate(entries).Apply(fresh)
		payload := BuildPayload(fresh, entries, assignmentIDs, lockedAt)
		raw, err := payload.Marshal()
		if err != nil {
			return fmt.Errorf("marshaling canonical payload for %s: %w", fresh.ID, err)
		}

		info, err = lk.repo.CreateCommit(ctx, fresh.ID, fresh.Period.String(), raw)
		if err != nil {
			if errors.Is(err, ledger.ErrIntegrityViolation) {
				log.Printf("CRITICAL: ledger integrity violation while locking report %s: %v", fresh.ID, err)
			}
			// Roll back: the report must not become locked without a commit.
			return err
		}

		fresh.Status = StatusLocked
		fresh.LockedAt = &lockedAt
		fresh.UpdatedAt = lockedAt
		if err := tx.UpdateReport(ctx, fresh); err != nil {
			return err
		}
		*report = *fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	if raced {
		return lk.finishWithExisting(ctx, report)
	}

	return &LockResult{Report: Snapshot(report), Commit: meta(info)}, nil
}

// finishWithExisting is the idempotent retry path: the ledger already holds
// a commit for this report, so no new commit is created. If a previous
// attempt failed between the commit and the relational transaction, the
// status transition is completed here.
func (lk *Locker) finishWithExisting(ctx context.Context, report *ActivityReport) (*LockResult, error) {
	info, err := lk.repo.FindCommit(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &ledger.InfraError{Op: "find-commit", Err: fmt.Errorf("commit for report %s exists but cannot be read", report.ID)}
	}

	err = lk.store.WithTx(ctx, func(tx Store) error {
		fresh, err := tx.GetReport(ctx, report.ID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fmt.Errorf("report %s: %w", report.ID, ErrReportNotFound)
		}
		if fresh.Status != StatusLocked {
			entries, err := tx.ActiveEntries(ctx, fresh.ID)
			if err != nil {
				return err
			}
			Recalculate(entries).Apply(fresh)
			fresh.Status = StatusLocked
			lockedAt := info.Timestamp.UTC()
			fresh.LockedAt = &lockedAt
			fresh.UpdatedAt = lk.now().UTC()
			if err := tx.UpdateReport(ctx, fresh); err != nil {
				return err
			}
		}
		*report = *fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &LockResult{Report: Snapshot(report), Commit: meta(info)}, nil
}

func meta(info *ledger.CommitInfo) *CommitMeta {
	return &CommitMeta{Hash: info.Hash, Message: info.Message, Timestamp: info.Timestamp}
}

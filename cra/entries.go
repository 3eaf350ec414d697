/*
entries.go - Report creation and entry mutation while draft

PURPOSE:
  Entries are added and removed only while a report is draft. Every entry
  mutation recomputes the report totals in the same transaction, so the
  persisted totals never lag the entry set.

GUARDS:
  Mutations require ownership and draft status. A submitted or locked
  report is immutable (ErrReportImmutable). Soft-deleted entries stay in
  storage but never contribute to totals or payloads.
*/
package cra

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORT CREATION
// =============================================================================

// CreateReport opens a new draft report for a creator and period. At most
// one report exists per creator per period.
func (s *Service) CreateReport(ctx context.Context, actorID string, period Period, description, currency string) (*ReportSnapshot, error) {
	if actorID == "" {
		return nil, fmt.Errorf("creator id required: %w", ErrInvalidInput)
	}
	if !period.Valid() {
		return nil, fmt.Errorf("period %s: %w", period, ErrInvalidInput)
	}
	if currency == "" {
		currency = "EUR"
	}

	now := s.now().UTC()
	report := &ActivityReport{
		ID:          NewID(),
		Period:      period,
		Status:      StatusDraft,
		Description: description,
		Currency:    currency,
		TotalDays:   decimal.Zero,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, err
	}
	return Snapshot(report), nil
}

// GetReport returns the snapshot of an active report.
func (s *Service) GetReport(ctx context.Context, reportID string) (*ReportSnapshot, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil || !report.Active() {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrReportNotFound)
	}
	return Snapshot(report), nil
}

// ListReports returns snapshots of a creator's active reports.
func (s *Service) ListReports(ctx context.Context, createdBy string) ([]*ReportSnapshot, error) {
	reports, err := s.store.ListReports(ctx, createdBy)
	if err != nil {
		return nil, err
	}
	snapshots := make([]*ReportSnapshot, 0, len(reports))
	for i := range reports {
		if reports[i].Active() {
			snapshots = append(snapshots, Snapshot(&reports[i]))
		}
	}
	return snapshots, nil
}

// Entries returns the active entries of a report.
func (s *Service) Entries(ctx context.Context, reportID string) ([]ActivityEntry, error) {
	return s.store.ActiveEntries(ctx, reportID)
}

// =============================================================================
// ENTRY MUTATIONS
// =============================================================================

// AddEntry appends a line item to a draft report. assignmentID is optional;
// when present a relation record links the entry to the work assignment.
// Totals are recomputed in the same transaction.
func (s *Service) AddEntry(ctx context.Context, reportID, actorID string, date time.Time, quantity decimal.Decimal, unitPrice int64, description, assignmentID string) (*ActivityEntry, error) {
	report, err := s.loadEditable(ctx, reportID, actorID)
	if err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("quantity must be positive: %w", ErrInvalidInput)
	}
	if unitPrice < 0 {
		return nil, fmt.Errorf("unit price must not be negative: %w", ErrInvalidInput)
	}

	now := s.now().UTC()
	entry := &ActivityEntry{
		ID:          NewID(),
		ReportID:    report.ID,
		Date:        dayOf(date),
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Description: description,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateEntry(ctx, entry); err != nil {
			return err
		}
		if assignmentID != "" {
			link := &AssignmentLink{ID: NewID(), EntryID: entry.ID, AssignmentID: assignmentID, CreatedAt: now}
			if err := tx.LinkAssignment(ctx, link); err != nil {
				return err
			}
		}
		return s.refreshTotals(ctx, tx, report, now)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveEntry soft-deletes an entry of a draft report and recomputes the
// totals in the same transaction.
func (s *Service) RemoveEntry(ctx context.Context, reportID, entryID, actorID string) (*ReportSnapshot, error) {
	report, err := s.loadEditable(ctx, reportID, actorID)
	if err != nil {
		return nil, err
	}

	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.Active() || entry.ReportID != report.ID {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryNotFound)
	}

	now := s.now().UTC()
	err = s.store.WithTx(ctx, func(tx Store) error {
		entry.DeletedAt = &now
		entry.UpdatedAt = now
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, report, now)
	})
	if err != nil {
		return nil, err
	}
	return Snapshot(report), nil
}

// refreshTotals recomputes and persists the totals from the transactional
// view of the entry set.
func (s *Service) refreshTotals(ctx context.Context, tx Store, report *ActivityReport, now time.Time) error {
	entries, err := tx.ActiveEntries(ctx, report.ID)
	if err != nil {
		return err
	}
	Recalculate(entries).Apply(report)
	report.UpdatedAt = now
	return tx.UpdateReport(ctx, report)
}

// loadEditable fetches an owned report that is still draft.
func (s *Service) loadEditable(ctx context.Context, reportID, actorID string) (*ActivityReport, error) {
	report, err := s.loadOwned(ctx, reportID, actorID)
	if err != nil {
		return nil, err
	}
	if report.Status != StatusDraft {
		return nil, fmt.Errorf("report %s is %s: %w", report.ID, report.Status, ErrReportImmutable)
	}
	return report, nil
}

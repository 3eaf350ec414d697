/*
Package cra implements monthly activity reports (CRA) for independent workers.

PURPOSE:
  This package contains the domain model and services for the activity
  report lifecycle. A report aggregates dated entries (quantity × unit
  price), carries two server-authoritative totals, and moves through a
  strict one-way lifecycle: draft → submitted → locked. Once locked, the
  report's final state is snapshotted into an append-only ledger and the
  report becomes immutable.

KEY CONCEPTS IN THIS FILE (types.go):
  - ActivityReport: A monthly declaration with period, totals, and status
  - ActivityEntry:  One dated line item belonging to exactly one report
  - Period:         A (month, year) pair identifying the declared month
  - ReportSnapshot: Read-only view returned to callers after a transition

DESIGN PRINCIPLES:
  1. Precision:   Quantities use decimal.Decimal; money is int64 minor units
  2. Immutability: Locked reports and their entries are never mutated
  3. Authority:    Totals are always recomputed server-side, never trusted
                   from input
  4. Soft delete:  Reports and entries carry a deletion marker; deleted
                   entries never contribute to totals or payloads

SEE ALSO:
  - totals.go:    Totals recalculation
  - payload.go:   Canonical payload built at lock time
  - lifecycle.go: Submit/Lock state machine
  - lock.go:      Ledger commit orchestration
*/
package cra

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - One-way lifecycle
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusLocked    Status = "locked"
)

// =============================================================================
// PERIOD - The declared month
// =============================================================================

// Period identifies the month a report declares activity for.
type Period struct {
	Month int `json:"month"` // 1-12
	Year  int `json:"year"`
}

// Valid reports whether the period denotes a real calendar month.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 2000 && p.Year <= 2200
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// =============================================================================
// ACTIVITY REPORT
// =============================================================================

// ActivityReport is a monthly declaration of work performed.
// Mutated only via the lifecycle service and entry mutations while draft.
type ActivityReport struct {
	ID          string
	Period      Period
	Status      Status
	Description string
	Currency    string // ISO 4217 code, e.g. "EUR"

	// Server-authoritative totals. Recomputed immediately before every
	// status transition and after every entry mutation while draft.
	TotalDays   decimal.Decimal
	TotalAmount int64 // minor currency units

	CreatedBy string
	LockedAt  *time.Time
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the report is not soft-deleted.
func (r *ActivityReport) Active() bool { return r.DeletedAt == nil }

// OwnedBy reports whether actorID is the report's creator.
func (r *ActivityReport) OwnedBy(actorID string) bool { return r.CreatedBy == actorID }

// =============================================================================
// ACTIVITY ENTRY
// =============================================================================

// ActivityEntry is one dated line item: quantity × unit price.
// An entry belongs to exactly one report and optionally links to one
// work assignment via an AssignmentLink relation record.
type ActivityEntry struct {
	ID          string
	ReportID    string
	Date        time.Time // day granularity
	Quantity    decimal.Decimal
	UnitPrice   int64 // minor currency units
	Description string
	CreatedBy   string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the entry is not soft-deleted.
func (e *ActivityEntry) Active() bool { return e.DeletedAt == nil }

// AssignmentLink associates an entry to a work assignment.
type AssignmentLink struct {
	ID           string
	EntryID      string
	AssignmentID string
	CreatedAt    time.Time
}

// =============================================================================
// SNAPSHOTS - What callers get back
// =============================================================================

// ReportSnapshot is the read-only view of a report returned after a
// lifecycle transition.
type ReportSnapshot struct {
	ID          string
	Period      Period
	Status      Status
	Description string
	Currency    string
	TotalDays   decimal.Decimal
	TotalAmount int64
	CreatedBy   string
	LockedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Snapshot builds the caller-facing view of a report.
func Snapshot(r *ActivityReport) *ReportSnapshot {
	return &ReportSnapshot{
		ID:          r.ID,
		Period:      r.Period,
		Status:      r.Status,
		Description: r.Description,
		Currency:    r.Currency,
		TotalDays:   r.TotalDays,
		TotalAmount: r.TotalAmount,
		CreatedBy:   r.CreatedBy,
		LockedAt:    r.LockedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// NewID returns a fresh identifier for reports, entries, and links.
func NewID() string { return uuid.NewString() }

/*
store.go - Persistence interface for reports, entries, and links

PURPOSE:
  Defines the interface between the lifecycle services and the relational
  store. Implementations must provide ACID transactions with enough
  serialization that two concurrent lock() calls on the SAME report cannot
  both observe status "submitted" inside WithTx.

KEY INTERFACES:
  Store:   CRUD over reports/entries/links
  TxStore: Store plus WithTx for atomic multi-statement operations

TRANSACTION CONTRACT:
  WithTx executes fn against a transactional Store view. If fn returns an
  error the transaction rolls back; otherwise it commits. The lock
  orchestrator relies on this to keep "ledger commit created" and "report
  marked locked" atomic with respect to the relational store.

IMPLEMENTATIONS:
  - store/sqlite:  Production SQLite store
  - cra/store:     In-memory store for tests
*/
package cra

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of reports, entries, and assignment links.
// Soft-deleted rows are returned by Get* calls (callers check Active);
// ActiveEntries filters them out.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, r *ActivityReport) error
	GetReport(ctx context.Context, id string) (*ActivityReport, error)
	UpdateReport(ctx context.Context, r *ActivityReport) error
	ListReports(ctx context.Context, createdBy string) ([]ActivityReport, error)

	// Entries
	CreateEntry(ctx context.Context, e *ActivityEntry) error
	GetEntry(ctx context.Context, id string) (*ActivityEntry, error)
	UpdateEntry(ctx context.Context, e *ActivityEntry) error
	ActiveEntries(ctx context.Context, reportID string) ([]ActivityEntry, error)

	// Assignment links
	LinkAssignment(ctx context.Context, link *AssignmentLink) error
	AssignmentIDs(ctx context.Context, reportID string) ([]string, error)
}

// TxStore wraps Store with transaction support. Implementations must hold
// a write lock for the duration of fn so concurrent transactions over the
// same rows are serialized.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. fn error rolls back;
	// nil commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}

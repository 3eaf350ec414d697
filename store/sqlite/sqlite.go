/*
Package sqlite provides the SQLite-backed implementation of cra.TxStore.

PURPOSE:
  Persists reports, entries, and assignment links. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  reports:          One row per activity report, status + totals
  entries:          Line items, soft-deleted via deleted_at
  assignment_links: Entry-to-assignment relation records

TRANSACTIONS & LOCKING:
  WithTx wraps fn in a database transaction AND holds the store's write
  mutex for its duration. Inside a single process this serializes
  concurrent lock() calls on the same report the way row-level locking
  does on a multi-connection database; the transactional view never takes
  the mutex again (helpers are lock-free and receive the queryer).

WAL MODE:
  SQLite is opened with WAL for better read concurrency and crash
  recovery. Foreign keys are enforced.

UNIQUENESS:
  A creator has at most one active report per (year, month); enforced by a
  partial unique index and surfaced as cra.ErrDuplicatePeriod.

SEE ALSO:
  - cra/store.go:        Interface definitions
  - cra/store/memory.go: In-memory implementation for unit tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mickeymick25/foresy-sub002/cra"
)

// Store implements cra.TxStore over SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and gives the
	// WithTx mutex real serialization power.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		description TEXT,
		currency TEXT NOT NULL DEFAULT 'EUR',
		total_days TEXT NOT NULL DEFAULT '0',
		total_amount INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL,
		locked_at TEXT,
		deleted_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One active report per creator per declared month.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_creator_period
		ON reports(created_by, year, month)
		WHERE deleted_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_reports_creator
		ON reports(created_by);
	CREATE INDEX IF NOT EXISTS idx_reports_status
		ON reports(status);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL REFERENCES reports(id),
		entry_date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price INTEGER NOT NULL,
		description TEXT,
		created_by TEXT NOT NULL,
		deleted_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: active entries of a report in canonical (date, id) order.
	CREATE INDEX IF NOT EXISTS idx_entries_report_date
		ON entries(report_id, entry_date, id)
		WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS assignment_links (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES entries(id),
		assignment_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_links_entry
		ON assignment_links(entry_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// REPORTS
// =============================================================================

func (s *Store) CreateReport(ctx context.Context, r *cra.ActivityReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createReport(ctx, s.db, r)
}

func createReport(ctx context.Context, q queryer, r *cra.ActivityReport) error {
	query := `
		INSERT INTO reports
		(id, month, year, status, description, currency, total_days, total_amount,
		 created_by, locked_at, deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		r.ID, r.Period.Month, r.Period.Year, r.Status, r.Description, r.Currency,
		r.TotalDays.String(), r.TotalAmount, r.CreatedBy,
		nullTime(r.LockedAt), nullTime(r.DeletedAt),
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("creator %s period %s: %w", r.CreatedBy, r.Period, cra.ErrDuplicatePeriod)
		}
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

const reportColumns = `id, month, year, status, description, currency, total_days,
	total_amount, created_by, locked_at, deleted_at, created_at, updated_at`

func (s *Store) GetReport(ctx context.Context, id string) (*cra.ActivityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReport(ctx, s.db, id)
}

func getReport(ctx context.Context, q queryer, id string) (*cra.ActivityReport, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanReport(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateReport(ctx context.Context, r *cra.ActivityReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReport(ctx, s.db, r)
}

func updateReport(ctx context.Context, q queryer, r *cra.ActivityReport) error {
	query := `
		UPDATE reports SET
			status = ?, description = ?, currency = ?, total_days = ?,
			total_amount = ?, locked_at = ?, deleted_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		r.Status, r.Description, r.Currency, r.TotalDays.String(), r.TotalAmount,
		nullTime(r.LockedAt), nullTime(r.DeletedAt),
		r.UpdatedAt.UTC().Format(time.RFC3339), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("report %s: %w", r.ID, cra.ErrReportNotFound)
	}
	return nil
}

func (s *Store) ListReports(ctx context.Context, createdBy string) ([]cra.ActivityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listReports(ctx, s.db, createdBy)
}

func listReports(ctx context.Context, q queryer, createdBy string) ([]cra.ActivityReport, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE created_by = ? ORDER BY year, month, id`,
		createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []cra.ActivityReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanReport(rows *sql.Rows) (cra.ActivityReport, error) {
	var (
		r                    cra.ActivityReport
		description          sql.NullString
		totalDays            string
		lockedAt, deletedAt  sql.NullString
		createdAt, updatedAt string
	)
	err := rows.Scan(
		&r.ID, &r.Period.Month, &r.Period.Year, &r.Status, &description, &r.Currency,
		&totalDays, &r.TotalAmount, &r.CreatedBy, &lockedAt, &deletedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan report: %w", err)
	}
	r.Description = description.String
	r.TotalDays = cra.MustDecimal(totalDays)
	r.LockedAt = parseNullTime(lockedAt)
	r.DeletedAt = parseNullTime(deletedAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return r, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (s *Store) CreateEntry(ctx context.Context, e *cra.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createEntry(ctx, s.db, e)
}

func createEntry(ctx context.Context, q queryer, e *cra.ActivityEntry) error {
	query := `
		INSERT INTO entries
		(id, report_id, entry_date, quantity, unit_price, description, created_by,
		 deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		e.ID, e.ReportID, e.Date.UTC().Format("2006-01-02"),
		e.Quantity.String(), e.UnitPrice, e.Description, e.CreatedBy,
		nullTime(e.DeletedAt),
		e.CreatedAt.UTC().Format(time.RFC3339), e.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

const entryColumns = `id, report_id, entry_date, quantity, unit_price, description,
	created_by, deleted_at, created_at, updated_at`

func (s *Store) GetEntry(ctx context.Context, id string) (*cra.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q queryer, id string) (*cra.ActivityEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e *cra.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntry(ctx, s.db, e)
}

func updateEntry(ctx context.Context, q queryer, e *cra.ActivityEntry) error {
	query := `
		UPDATE entries SET
			entry_date = ?, quantity = ?, unit_price = ?, description = ?,
			deleted_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		e.Date.UTC().Format("2006-01-02"), e.Quantity.String(), e.UnitPrice,
		e.Description, nullTime(e.DeletedAt),
		e.UpdatedAt.UTC().Format(time.RFC3339), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("entry %s: %w", e.ID, cra.ErrEntryNotFound)
	}
	return nil
}

func (s *Store) ActiveEntries(ctx context.Context, reportID string) ([]cra.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeEntries(ctx, s.db, reportID)
}

func activeEntries(ctx context.Context, q queryer, reportID string) ([]cra.ActivityEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE report_id = ? AND deleted_at IS NULL
		 ORDER BY entry_date ASC, id ASC`,
		reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []cra.ActivityEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (cra.ActivityEntry, error) {
	var (
		e                    cra.ActivityEntry
		entryDate, quantity  string
		description          sql.NullString
		deletedAt            sql.NullString
		createdAt, updatedAt string
	)
	err := rows.Scan(
		&e.ID, &e.ReportID, &entryDate, &quantity, &e.UnitPrice, &description,
		&e.CreatedBy, &deletedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.Date, _ = time.Parse("2006-01-02", entryDate)
	e.Quantity = cra.MustDecimal(quantity)
	e.Description = description.String
	e.DeletedAt = parseNullTime(deletedAt)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

// =============================================================================
// ASSIGNMENT LINKS
// =============================================================================

func (s *Store) LinkAssignment(ctx context.Context, link *cra.AssignmentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return linkAssignment(ctx, s.db, link)
}

func linkAssignment(ctx context.Context, q queryer, link *cra.AssignmentLink) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO assignment_links (id, entry_id, assignment_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		link.ID, link.EntryID, link.AssignmentID,
		link.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert assignment link: %w", err)
	}
	return nil
}

func (s *Store) AssignmentIDs(ctx context.Context, reportID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return assignmentIDs(ctx, s.db, reportID)
}

func assignmentIDs(ctx context.Context, q queryer, reportID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT l.assignment_id
		 FROM assignment_links l
		 JOIN entries e ON e.id = l.entry_id
		 WHERE e.report_id = ? AND e.deleted_at IS NULL
		 ORDER BY l.assignment_id ASC`,
		reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction, holding the store's
// write mutex for the duration so same-report lock attempts serialize.
func (s *Store) WithTx(ctx context.Context, fn func(cra.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every operation on the open transaction without touching
// the parent mutex (already held by WithTx).
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) CreateReport(ctx context.Context, r *cra.ActivityReport) error {
	return createReport(ctx, t.tx, r)
}

func (t *txStore) GetReport(ctx context.Context, id string) (*cra.ActivityReport, error) {
	return getReport(ctx, t.tx, id)
}

func (t *txStore) UpdateReport(ctx context.Context, r *cra.ActivityReport) error {
	return updateReport(ctx, t.tx, r)
}

func (t *txStore) ListReports(ctx context.Context, createdBy string) ([]cra.ActivityReport, error) {
	return listReports(ctx, t.tx, createdBy)
}

func (t *txStore) CreateEntry(ctx context.Context, e *cra.ActivityEntry) error {
	return createEntry(ctx, t.tx, e)
}

func (t *txStore) GetEntry(ctx context.Context, id string) (*cra.ActivityEntry, error) {
	return getEntry(ctx, t.tx, id)
}

func (t *txStore) UpdateEntry(ctx context.Context, e *cra.ActivityEntry) error {
	return updateEntry(ctx, t.tx, e)
}

func (t *txStore) ActiveEntries(ctx context.Context, reportID string) ([]cra.ActivityEntry, error) {
	return activeEntries(ctx, t.tx, reportID)
}

func (t *txStore) LinkAssignment(ctx context.Context, link *cra.AssignmentLink) error {
	return linkAssignment(ctx, t.tx, link)
}

func (t *txStore) AssignmentIDs(ctx context.Context, reportID string) ([]string, error) {
	return assignmentIDs(ctx, t.tx, reportID)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"assignment_links", "entries", "reports"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

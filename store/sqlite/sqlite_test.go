package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickeymick25/foresy-sub002/cra"
	"github.com/mickeymick25/foresy-sub002/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testReport(id, creator string, month int) *cra.ActivityReport {
	now := time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)
	return &cra.ActivityReport{
		ID:          id,
		Period:      cra.Period{Month: month, Year: 2025},
		Status:      cra.StatusDraft,
		Description: "consulting",
		Currency:    "EUR",
		TotalDays:   cra.MustDecimal("0"),
		CreatedBy:   creator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testEntry(id, reportID string, date time.Time, quantity string, price int64) *cra.ActivityEntry {
	now := time.Date(2025, time.January, 5, 10, 0, 0, 0, time.UTC)
	return &cra.ActivityEntry{
		ID:        id,
		ReportID:  reportID,
		Date:      date,
		Quantity:  cra.MustDecimal(quantity),
		UnitPrice: price,
		CreatedBy: "worker-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// REPORT PERSISTENCE
// =============================================================================

func TestReport_Roundtrip(t *testing.T) {
	// GIVEN: A fresh store
	// WHEN: Creating, reading, and updating a report
	// THEN: Every field survives, including decimal totals and timestamps

	store := newTestStore(t)
	ctx := context.Background()

	report := testReport("r-1", "worker-1", 1)
	report.TotalDays = cra.MustDecimal("1.5")
	report.TotalAmount = 80000
	require.NoError(t, store.CreateReport(ctx, report))

	got, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, report.Period, got.Period)
	assert.Equal(t, cra.StatusDraft, got.Status)
	assert.True(t, got.TotalDays.Equal(cra.MustDecimal("1.5")))
	assert.Equal(t, int64(80000), got.TotalAmount)
	assert.Equal(t, report.CreatedAt, got.CreatedAt)
	assert.Nil(t, got.LockedAt)

	lockedAt := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)
	got.Status = cra.StatusLocked
	got.LockedAt = &lockedAt
	require.NoError(t, store.UpdateReport(ctx, got))

	again, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, cra.StatusLocked, again.Status)
	require.NotNil(t, again.LockedAt)
	assert.True(t, again.LockedAt.Equal(lockedAt))
}

func TestReport_GetUnknownReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetReport(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReport_UpdateUnknownFails(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateReport(context.Background(), testReport("ghost", "worker-1", 1))
	assert.ErrorIs(t, err, cra.ErrReportNotFound)
}

func TestReport_DuplicatePeriodRejected(t *testing.T) {
	// GIVEN: worker-1 already has an active January report
	// WHEN: Inserting a second January report for the same creator
	// THEN: DuplicatePeriod; other creators and soft-deleted rows don't count

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateReport(ctx, testReport("r-1", "worker-1", 1)))

	err := store.CreateReport(ctx, testReport("r-2", "worker-1", 1))
	assert.ErrorIs(t, err, cra.ErrDuplicatePeriod)

	require.NoError(t, store.CreateReport(ctx, testReport("r-3", "worker-2", 1)))

	// Soft-delete the original; the period becomes available again.
	first, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	deletedAt := time.Now().UTC()
	first.DeletedAt = &deletedAt
	require.NoError(t, store.UpdateReport(ctx, first))

	assert.NoError(t, store.CreateReport(ctx, testReport("r-4", "worker-1", 1)))
}

func TestReport_ListOrdersByPeriod(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateReport(ctx, testReport("r-mar", "worker-1", 3)))
	require.NoError(t, store.CreateReport(ctx, testReport("r-jan", "worker-1", 1)))
	require.NoError(t, store.CreateReport(ctx, testReport("r-other", "worker-2", 2)))

	reports, err := store.ListReports(ctx, "worker-1")
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, "r-jan", reports[0].ID)
	assert.Equal(t, "r-mar", reports[1].ID)
}

// =============================================================================
// ENTRY PERSISTENCE
// =============================================================================

func TestEntries_ActiveOrderedByDateThenID(t *testing.T) {
	// GIVEN: Entries inserted newest-first, one soft-deleted
	// WHEN: Querying active entries
	// THEN: Date-ascending order, ties broken by id, deleted rows excluded

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReport(ctx, testReport("r-1", "worker-1", 1)))

	jan1 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	jan2 := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateEntry(ctx, testEntry("e-3", "r-1", jan2, "1.0", 50000)))
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-1", "r-1", jan2, "0.5", 50000)))
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-2", "r-1", jan1, "0.5", 60000)))

	deleted := testEntry("e-4", "r-1", jan1, "1", 70000)
	now := time.Now().UTC()
	deleted.DeletedAt = &now
	require.NoError(t, store.CreateEntry(ctx, deleted))

	entries, err := store.ActiveEntries(ctx, "r-1")
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "e-2", entries[0].ID)
	assert.Equal(t, "e-1", entries[1].ID)
	assert.Equal(t, "e-3", entries[2].ID)
	assert.True(t, entries[1].Quantity.Equal(cra.MustDecimal("0.5")))
	assert.Equal(t, jan1, entries[0].Date)
}

func TestEntries_SoftDeleteRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReport(ctx, testReport("r-1", "worker-1", 1)))

	jan1 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-1", "r-1", jan1, "1", 50000)))

	got, err := store.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	deletedAt := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	got.DeletedAt = &deletedAt
	got.UpdatedAt = deletedAt
	require.NoError(t, store.UpdateEntry(ctx, got))

	entries, err := store.ActiveEntries(ctx, "r-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	again, err := store.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, again.DeletedAt)
}

// =============================================================================
// ASSIGNMENT LINKS
// =============================================================================

func TestAssignmentIDs_DistinctSortedActiveOnly(t *testing.T) {
	// GIVEN: Three links across two entries, two sharing an assignment,
	//        and one entry soft-deleted
	// WHEN: Querying the report's assignment ids
	// THEN: Distinct, sorted, and only from active entries

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReport(ctx, testReport("r-1", "worker-1", 1)))

	jan1 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	jan2 := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-1", "r-1", jan1, "1", 50000)))
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-2", "r-1", jan2, "1", 50000)))

	now := time.Now().UTC()
	link := func(id, entryID, assignmentID string) *cra.AssignmentLink {
		return &cra.AssignmentLink{ID: id, EntryID: entryID, AssignmentID: assignmentID, CreatedAt: now}
	}
	require.NoError(t, store.LinkAssignment(ctx, link("l-1", "e-1", "assign-b")))
	require.NoError(t, store.LinkAssignment(ctx, link("l-2", "e-2", "assign-a")))
	require.NoError(t, store.LinkAssignment(ctx, link("l-3", "e-2", "assign-b")))

	ids, err := store.AssignmentIDs(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"assign-a", "assign-b"}, ids)

	// Soft-delete e-2: its assignments stop contributing.
	e2, err := store.GetEntry(ctx, "e-2")
	require.NoError(t, err)
	e2.DeletedAt = &now
	require.NoError(t, store.UpdateEntry(ctx, e2))

	ids, err = store.AssignmentIDs(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"assign-b"}, ids)
}

func TestReset_ClearsAllTables(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateReport(ctx, testReport("r-1", "worker-1", 1)))
	jan1 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateEntry(ctx, testEntry("e-1", "r-1", jan1, "1", 50000)))

	require.NoError(t, store.Reset(ctx))

	got, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	entries, err := store.ActiveEntries(ctx, "r-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts an entry and then fails
	// WHEN: WithTx returns
	// THEN: The insert is rolled back

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReport(ctx, testReport("r-1", "worker-1", 1)))

	boom := errors.New("boom")
	jan1 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	err := store.WithTx(ctx, func(tx cra.Store) error {
		if err := tx.CreateEntry(ctx, testEntry("e-1", "r-1", jan1, "1", 50000)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.Nil(t, got, "failed transaction must leave no trace")
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	// GIVEN: A transaction that mutates a report and adds an entry
	// WHEN: The function returns nil
	// THEN: Both writes are visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReport(ctx, testReport("r-1", "worker-1", 1)))

	jan1 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	err := store.WithTx(ctx, func(tx cra.Store) error {
		if err := tx.CreateEntry(ctx, testEntry("e-1", "r-1", jan1, "1", 50000)); err != nil {
			return err
		}
		report, err := tx.GetReport(ctx, "r-1")
		if err != nil {
			return err
		}
		report.Status = cra.StatusSubmitted
		report.TotalAmount = 50000
		return tx.UpdateReport(ctx, report)
	})
	require.NoError(t, err)

	report, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, cra.StatusSubmitted, report.Status)
	assert.Equal(t, int64(50000), report.TotalAmount)

	entries, err := store.ActiveEntries(ctx, "r-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

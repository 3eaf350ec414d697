package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickeymick25/foresy-sub002/cra"
	"github.com/mickeymick25/foresy-sub002/cra/store"
)

func draft(id, creator string, month int) *cra.ActivityReport {
	now := time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)
	return &cra.ActivityReport{
		ID:        id,
		Period:    cra.Period{Month: month, Year: 2025},
		Status:    cra.StatusDraft,
		Currency:  "EUR",
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemory_WithTxRollsBackAllMaps(t *testing.T) {
	// GIVEN: A transaction that creates a report, an entry, and a link,
	//        then fails
	// WHEN: WithTx returns
	// THEN: None of the three writes survive

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateReport(ctx, draft("r-1", "worker-1", 1)))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(tx cra.Store) error {
		entry := &cra.ActivityEntry{
			ID: "e-1", ReportID: "r-1",
			Date:     time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
			Quantity: cra.MustDecimal("1"), UnitPrice: 50000,
		}
		if err := tx.CreateEntry(ctx, entry); err != nil {
			return err
		}
		link := &cra.AssignmentLink{ID: "l-1", EntryID: "e-1", AssignmentID: "a-1"}
		if err := tx.LinkAssignment(ctx, link); err != nil {
			return err
		}
		report, err := tx.GetReport(ctx, "r-1")
		if err != nil {
			return err
		}
		report.Status = cra.StatusSubmitted
		if err := tx.UpdateReport(ctx, report); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	report, err := mem.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, cra.StatusDraft, report.Status, "report mutation rolled back")

	entry, err := mem.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.Nil(t, entry, "entry insert rolled back")

	ids, err := mem.AssignmentIDs(ctx, "r-1")
	require.NoError(t, err)
	assert.Empty(t, ids, "link insert rolled back")
}

func TestMemory_GetReportReturnsCopy(t *testing.T) {
	// GIVEN: A stored report
	// WHEN: A caller mutates the value GetReport returned
	// THEN: The stored row is unaffected until UpdateReport

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateReport(ctx, draft("r-1", "worker-1", 1)))

	got, err := mem.GetReport(ctx, "r-1")
	require.NoError(t, err)
	got.Status = cra.StatusLocked

	stored, err := mem.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, cra.StatusDraft, stored.Status)
}

func TestMemory_DuplicatePeriodPerCreator(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.CreateReport(ctx, draft("r-1", "worker-1", 1)))

	err := mem.CreateReport(ctx, draft("r-2", "worker-1", 1))
	assert.ErrorIs(t, err, cra.ErrDuplicatePeriod)

	assert.NoError(t, mem.CreateReport(ctx, draft("r-3", "worker-2", 1)))
	assert.NoError(t, mem.CreateReport(ctx, draft("r-4", "worker-1", 2)))
}

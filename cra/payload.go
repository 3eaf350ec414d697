/*
payload.go - Canonical payload built at lock time

PURPOSE:
  The canonical payload is the deterministic serialized snapshot of a
  report committed to the ledger. It becomes a permanent audit artifact, so
  serialization must be byte-identical across repeated calls on unchanged
  data; otherwise independent verification of "what was locked" would be
  impossible.

DETERMINISM RULES:
  1. Entries sorted by (date, id) ascending, regardless of insertion order
  2. Assignment-id lists sorted ascending
  3. Decimals rendered via decimal.String(), never locale-dependent
  4. Dates as 2006-01-02; timestamps as RFC3339 in UTC
  5. JSON built from structs with fixed field order, never maps
*/
package cra

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYLOAD SHAPES
// =============================================================================

// CanonicalPayload is the derived, never-persisted snapshot of a report.
type CanonicalPayload struct {
	ReportID      string         `json:"report_id"`
	Period        Period         `json:"period"`
	AssignmentIDs []string       `json:"assignment_ids"`
	Entries       []PayloadEntry `json:"entries"`
	Totals        PayloadTotals  `json:"totals"`
	LockedAt      string         `json:"locked_at"`
	Currency      string         `json:"currency"`
	Description   string         `json:"description"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

// PayloadEntry is one active line item in canonical order.
type PayloadEntry struct {
	ID          string `json:"id"`
	Date        string `json:"date"`     // 2006-01-02
	Quantity    string `json:"quantity"` // plain decimal, e.g. "1.5"
	UnitPrice   int64  `json:"unit_price"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

// PayloadTotals mirrors the server-authoritative totals.
type PayloadTotals struct {
	Days   string `json:"days"` // plain decimal
	Amount int64  `json:"amount"`
}

// =============================================================================
// BUILDER
// =============================================================================

// BuildPayload assembles the canonical payload from a report, its active
// entries, and its assignment-id list. Totals are recomputed here so the
// payload can never disagree with the aggregation rules.
func BuildPayload(r *ActivityReport, entries []ActivityEntry, assignmentIDs []string, lockedAt time.Time) CanonicalPayload {
	active := make([]ActivityEntry, 0, len(entries))
	for _, e := range entries {
		if e.Active() {
			active = append(active, e)
		}
	}

	// Canonical entry order: (date, id) ascending.
	sort.Slice(active, func(i, j int) bool {
		di, dj := dayOf(active[i].Date), dayOf(active[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return active[i].ID < active[j].ID
	})

	payloadEntries := make([]PayloadEntry, len(active))
	for i, e := range active {
		payloadEntries[i] = PayloadEntry{
			ID:          e.ID,
			Date:        dayOf(e.Date).Format("2006-01-02"),
			Quantity:    e.Quantity.String(),
			UnitPrice:   e.UnitPrice,
			Description: e.Description,
			CreatedBy:   e.CreatedBy,
		}
	}

	ids := make([]string, len(assignmentIDs))
	copy(ids, assignmentIDs)
	sort.Strings(ids)

	totals := Recalculate(active)

	return CanonicalPayload{
		ReportID:      r.ID,
		Period:        r.Period,
		AssignmentIDs: ids,
		Entries:       payloadEntries,
		Totals:        PayloadTotals{Days: totals.Days.String(), Amount: totals.Amount},
		LockedAt:      lockedAt.UTC().Format(time.RFC3339),
		Currency:      r.Currency,
		Description:   r.Description,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Marshal serializes the payload. Struct-based encoding gives a fixed field
// order, so unchanged data marshals to byte-identical output.
func (p CanonicalPayload) Marshal() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// dayOf truncates a timestamp to day granularity in UTC.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MustDecimal parses a plain decimal string, returning zero on failure.
// Used by stores when scanning persisted quantities.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

/*
totals.go - Server-authoritative totals recalculation

PURPOSE:
  A report carries two totals that are never trusted from input:

    TotalDays   = Σ quantity            over active entries
    TotalAmount = Σ round(qty × price)  over active entries

  Each amount term is rounded to the nearest integer minor-currency unit
  BEFORE summation: cents precision is decided per entry, and no
  floating-point value ever enters the accumulation.

WHEN TO RECALCULATE:
  Immediately before submit, immediately before lock, and after every entry
  mutation while the report is draft. Recalculate is a pure function of the
  entry slice; the caller persists the returned totals.
*/
package cra

import "github.com/shopspring/decimal"

// Totals are the two server-authoritative aggregates of a report.
type Totals struct {
	Days   decimal.Decimal
	Amount int64 // minor currency units
}

// Recalculate aggregates the active entries of a report. Soft-deleted
// entries never contribute. Pure: identical input yields identical totals.
func Recalculate(entries []ActivityEntry) Totals {
	days := decimal.Zero
	var amount int64

	for _, e := range entries {
		if !e.Active() {
			continue
		}
		days = days.Add(e.Quantity)
		// Per-entry rounding to the nearest minor unit, then integer sum.
		term := e.Quantity.Mul(decimal.NewFromInt(e.UnitPrice)).Round(0)
		amount += term.IntPart()
	}

	return Totals{Days: days, Amount: amount}
}

// Apply writes the totals onto a report.
func (t Totals) Apply(r *ActivityReport) {
	r.TotalDays = t.Days
	r.TotalAmount = t.Amount
}

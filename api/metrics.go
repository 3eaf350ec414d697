/*
metrics.go - Prometheus instrumentation for lifecycle operations

PURPOSE:
  Counts lifecycle transitions by operation and outcome, and tracks the
  timestamp of the most recent ledger commit. Served on /metrics.

SEE ALSO:
  - handlers.go: Calls observeTransition/observeLedgerCommit
*/
package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cra_lifecycle_transitions_total",
			Help: "Lifecycle transition attempts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	lastLedgerCommit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cra_ledger_last_commit_timestamp_seconds",
			Help: "Unix timestamp of the most recently observed ledger commit.",
		},
	)
)

func init() {
	prometheus.MustRegister(transitionsTotal, lastLedgerCommit)
}

func observeTransition(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	transitionsTotal.WithLabelValues(operation, outcome).Inc()
}

func observeLedgerCommit(at time.Time) {
	lastLedgerCommit.Set(float64(at.Unix()))
}

// Package metrics exposes the gate and decision counters on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts gate scans by result ("accepted"/"rejected") and
	// rejection reason ("" for accepted).
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuspass_scans_total",
		Help: "Gate scans by result and rejection reason.",
	}, []string{"result", "reason"})

	// DecisionsTotal counts warden decisions by outcome.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuspass_decisions_total",
		Help: "Warden pass decisions by outcome.",
	}, []string{"outcome"})

	// SnapshotsTotal counts dashboard snapshots pushed, by view.
	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuspass_snapshots_total",
		Help: "Dashboard snapshots pushed to subscribers, by view.",
	}, []string{"view"})
)

package statesync

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// Entries is the current number of live entries.
	Entries prometheus.Gauge

	// Tombstones is the current number of tombstoned entries awaiting
	// garbage collection.
	Tombstones prometheus.Gauge

	// DeltasApplied is the total number of applied inbound deltas.
	DeltasApplied prometheus.Counter

	// DeltasRejected is the total number of inbound deltas rejected as
	// stale or by conflict resolution.
	DeltasRejected prometheus.Counter

	// Conflicts is the total number of concurrent write conflicts,
	// labelled by policy.
	Conflicts *prometheus.CounterVec

	// Sessions is the current number of active sync sessions.
	Sessions prometheus.Gauge

	// SessionsRejected is the total number of sync sessions rejected at
	// the session limit.
	SessionsRejected prometheus.Counter

	// GCRemoved is the total number of entries removed by garbage
	// collection.
	GCRemoved prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rhizome",
				Subsystem: "sync",
				Name:      "entries",
				Help:      "Current number of live entries",
			},
		),
		Tombstones: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rhizome",
				Subsystem: "sync",
				Name:      "tombstones",
				Help:      "Current number of tombstoned entries",
			},
		),
		DeltasApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "sync",
				Name:      "deltas_applied_total",
				Help:      "Total number of applied inbound deltas",
			},
		),
		DeltasRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "sync",
				Name:      "deltas_rejected_total",
				Help:      "Total number of rejected inbound deltas",
			},
		),
		Conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "sync",
				Name:      "conflicts_total",
				Help:      "Total number of concurrent write conflicts",
			},
			[]string{"policy"},
		),
		Sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rhizome",
				Subsystem: "sync",
				Name:      "sessions",
				Help:      "Current number of active sync sessions",
			},
		),
		SessionsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "sync",
				Name:      "sessions_rejected_total",
				Help:      "Total number of sync sessions rejected at the session limit",
			},
		),
		GCRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "sync",
				Name:      "gc_removed_total",
				Help:      "Total number of entries removed by garbage collection",
			},
		),
	}
}

func (m *Metrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.Entries,
		m.Tombstones,
		m.DeltasApplied,
		m.DeltasRejected,
		m.Conflicts,
		m.Sessions,
		m.SessionsRejected,
		m.GCRemoved,
	)
}

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's prometheus instruments.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	LiveDocuments     prometheus.Gauge
	OpsApplied        prometheus.Counter
	UnmatchedDeletes  prometheus.Counter
	PersistFailures   prometheus.Counter
	BroadcastDrops    prometheus.Counter
}

// NewMetrics registers the engine's instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docsync",
			Subsystem: "collab",
			Name:      "active_connections",
			Help:      "Number of live WebSocket connections.",
		}),
		LiveDocuments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docsync",
			Subsystem: "collab",
			Name:      "live_documents",
			Help:      "Number of documents with at least one connection.",
		}),
		OpsApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docsync",
			Subsystem: "collab",
			Name:      "ops_applied_total",
			Help:      "CRDT operations applied to master documents.",
		}),
		UnmatchedDeletes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docsync",
			Subsystem: "collab",
			Name:      "unmatched_deletes_total",
			Help:      "Delete operations referencing identifiers never seen; indicates reordering or a convergence gap.",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docsync",
			Subsystem: "collab",
			Name:      "persist_failures_total",
			Help:      "Failed attempts to persist flattened document content.",
		}),
		BroadcastDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docsync",
			Subsystem: "collab",
			Name:      "broadcast_drops_total",
			Help:      "Connections dropped because a broadcast send failed.",
		}),
	}
}

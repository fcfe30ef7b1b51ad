// Package observability carries the ambient concerns spec.md's Non-goals
// exclude from the core engine but do not forbid: structured logging,
// Prometheus metrics, and a live event feed for dashboards. Grounded on
// the teacher's pkg/metrics.BusinessMetrics (promauto-registered
// CounterVec/GaugeVec taxonomy) and internal/realtime.DefaultEventBus.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics holds the Prometheus series SPEC_FULL.md §7 names, one set
// per process, labeled per component.
type EngineMetrics struct {
	QueueDepth            *prometheus.GaugeVec
	LVT                   *prometheus.GaugeVec
	RollbacksTotal        *prometheus.CounterVec
	AntiMessagesSentTotal *prometheus.CounterVec
	AnnihilationsTotal    *prometheus.CounterVec
	CheckpointsTotal      *prometheus.CounterVec
}

// NewEngineMetrics registers the timewarp_* series under namespace with
// promauto, following the teacher's one-call-per-series construction
// style.
func NewEngineMetrics(namespace string) *EngineMetrics {
	return &EngineMetrics{
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current number of messages pending in a component's Priority Message Queue.",
			},
			[]string{"component"},
		),
		LVT: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "lvt",
				Help:      "Current Local Virtual Time of a component.",
			},
			[]string{"component"},
		),
		RollbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of rollbacks a component's Rollback Manager has performed.",
			},
			[]string{"component"},
		),
		AntiMessagesSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "antimessages_sent_total",
				Help:      "Total number of anti-messages a component has sent as a rollback's corrective action.",
			},
			[]string{"component"},
		),
		AnnihilationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_annihilations_total",
				Help:      "Total number of message/anti-message pairs annihilated in a component's queue before execution.",
			},
			[]string{"component"},
		),
		CheckpointsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoints_total",
				Help:      "Total number of checkpoints a component's Rollback Manager has taken.",
			},
			[]string{"component"},
		),
	}
}

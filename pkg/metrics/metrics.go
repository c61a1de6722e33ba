// Package metrics exposes the Prometheus collectors every governance
// component registers against.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the governance pipeline, watchdog, and
// hatchery update.
type Registry struct {
	ProposalsDecided   *prometheus.CounterVec
	PolicyViolations   *prometheus.CounterVec
	OversightRouted    prometheus.Counter
	PipelineLatency    prometheus.Histogram
	QueueLag           prometheus.Gauge
	HatcheryInstances  prometheus.Gauge
	ConvergenceScore   *prometheus.GaugeVec
	PendingReviews     prometheus.Gauge
}

// NewRegistry registers every collector against reg (use
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across parallel test runs).
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		ProposalsDecided: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "governance",
			Name:      "proposals_decided_total",
			Help:      "Total proposals decided, labeled by final decision.",
		}, []string{"decision"}),

		PolicyViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "governance",
			Name:      "policy_violations_total",
			Help:      "Total proposals rejected by the deterministic transition rules, labeled by the blocked from>to transition.",
		}, []string{"rule_id"}),

		OversightRouted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "governance",
			Name:      "oversight_routed_total",
			Help:      "Total proposals routed to oversight review.",
		}),

		PipelineLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swarm",
			Subsystem: "governance",
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end latency of the three-phase governance pipeline.",
			Buckets:   prometheus.DefBuckets,
		}),

		QueueLag: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Subsystem: "bus",
			Name:      "consumer_lag",
			Help:      "Number of messages pending delivery to the governance consumer.",
		}),

		HatcheryInstances: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Subsystem: "hatchery",
			Name:      "instances",
			Help:      "Current number of running hatchery instances.",
		}),

		ConvergenceScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "swarm",
			Subsystem: "convergence",
			Name:      "dimension_score",
			Help:      "Latest smoothed convergence score per scope and dimension.",
		}, []string{"scope_id", "dimension"}),

		PendingReviews: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Subsystem: "watchdog",
			Name:      "pending_reviews",
			Help:      "Current number of unresolved human-in-the-loop reviews.",
		}),
	}
}

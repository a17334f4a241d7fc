// README: Prometheus collectors for the dispatch pipeline.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchAttempts counts MatchFinder invocations by outcome ("matched",
	// "no_candidates", "error").
	MatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "matching",
		Name:      "attempts_total",
		Help:      "Match attempts by outcome.",
	}, []string{"outcome"})

	// MatchDuration observes end-to-end candidate search + scoring latency.
	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "relay",
		Subsystem: "matching",
		Name:      "duration_seconds",
		Help:      "Latency of findMatches.",
		Buckets:   prometheus.DefBuckets,
	})

	// Offers counts assignment offers by terminal outcome ("pending" on
	// creation, then "accepted", "rejected", "expired", "cancelled").
	Offers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "assignment",
		Name:      "offers_total",
		Help:      "Assignment offers by status transition.",
	}, []string{"status"})

	// SweepExpirations counts assignments expired by the background sweep.
	SweepExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "assignment",
		Name:      "sweep_expirations_total",
		Help:      "Offers expired by the timeout sweep.",
	})

	// QueueDepth tracks open reassignment queue items.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "requeue",
		Name:      "open_items",
		Help:      "Reassignment queue items in pending or processing state.",
	})

	// DrainResults counts drained queue items by outcome ("dispatched",
	// "no_candidates", "exhausted", "error").
	DrainResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "requeue",
		Name:      "drain_results_total",
		Help:      "Queue drain item outcomes.",
	}, []string{"outcome"})
)

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	conflictsDetectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciliation_service",
		Subsystem: "engine",
		Name:      "conflicts_detected_total",
		Help:      "Number of cross-source conflicts recorded, labeled by conflict type.",
	}, []string{"conflict_type"})

	autoResolvedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation_service",
		Subsystem: "engine",
		Name:      "conflicts_auto_resolved_total",
		Help:      "Number of conflicts resolved automatically via precedence rules.",
	})

	requiresReviewCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation_service",
		Subsystem: "engine",
		Name:      "conflicts_requiring_review_total",
		Help:      "Number of conflicts routed to manual review.",
	})

	skippedRecordsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation_service",
		Subsystem: "engine",
		Name:      "records_skipped_total",
		Help:      "Number of malformed platform records skipped during reconciliation runs.",
	})

	lastRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reconciliation_service",
		Subsystem: "engine",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed reconciliation run.",
	})

	manualResolutionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation_service",
		Subsystem: "engine",
		Name:      "conflicts_manually_resolved_total",
		Help:      "Number of conflicts resolved through the manual override endpoint.",
	})
)

func init() {
	prometheus.MustRegister(
		conflictsDetectedCounter,
		autoResolvedCounter,
		requiresReviewCounter,
		skippedRecordsCounter,
		lastRunGauge,
		manualResolutionCounter,
	)
}

// RecordRun updates the run watermark and per-run counters.
func RecordRun(conflictTypes []string, autoResolved, requiresReview, skipped int) {
	for _, conflictType := range conflictTypes {
		conflictsDetectedCounter.WithLabelValues(conflictType).Inc()
	}
	autoResolvedCounter.Add(float64(autoResolved))
	requiresReviewCounter.Add(float64(requiresReview))
	skippedRecordsCounter.Add(float64(skipped))
	lastRunGauge.Set(float64(time.Now().Unix()))
}

// RecordManualResolution counts an operator-driven conflict resolution.
func RecordManualResolution() {
	manualResolutionCounter.Inc()
}

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		exportRequestsProcessedTotal,
		exportAttemptDuration,
		exportArtifactsWrittenTotal,
		exportArtifactBytes,
		exportBackoffDeferredTotal,
		exportClaimConflictsTotal,
		exportRequestsEnqueuedTotal,
	)
}

var (
	exportRequestsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_requests_processed_total",
			Help: "Export requests handled by the queue processor, labeled by outcome.",
		},
		[]string{"status"}, // completed, retrying, failed, deferred, claimed_elsewhere
	)

	exportAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "export_attempt_duration_seconds",
			Help:    "Wall time of one export attempt from claim to final write.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"format", "outcome"},
	)

	exportArtifactsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_artifacts_written_total",
			Help: "Artifacts persisted to the object store, labeled by artifact name.",
		},
		[]string{"artifact"},
	)

	exportArtifactBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "export_artifact_bytes",
			Help:    "Serialized artifact size in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"artifact"},
	)

	exportBackoffDeferredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "export_backoff_deferred_total",
			Help: "Requests left pending because their retry delay had not elapsed.",
		},
	)

	exportClaimConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "export_claim_conflicts_total",
			Help: "Requests skipped because another invocation claimed them first.",
		},
	)

	exportRequestsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_requests_enqueued_total",
			Help: "Export requests created, labeled by format.",
		},
		[]string{"format"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncExportProcessed(status string) {
	exportRequestsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveExportAttempt(format, outcome string, d time.Duration) {
	exportAttemptDuration.WithLabelValues(norm(format), norm(outcome)).Observe(d.Seconds())
}

func ObserveArtifactWritten(artifact string, size int) {
	exportArtifactsWrittenTotal.WithLabelValues(norm(artifact)).Inc()
	exportArtifactBytes.WithLabelValues(norm(artifact)).Observe(float64(size))
}

func IncBackoffDeferred() { exportBackoffDeferredTotal.Inc() }

func IncClaimConflict() { exportClaimConflictsTotal.Inc() }

func IncExportEnqueued(format string) {
	exportRequestsEnqueuedTotal.WithLabelValues(norm(format)).Inc()
}

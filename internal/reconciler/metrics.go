package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type reconcilerMetrics struct {
	syncRunsStarted        prometheus.Counter
	syncRunOutcomes        *prometheus.CounterVec
	syncRunDuration        prometheus.Histogram
	syncEventsScanned      prometheus.Counter
	syncMeetingsMatched    prometheus.Counter
	syncRequestsRejected   prometheus.Counter
	syncOutcomePublishErrs prometheus.Counter
}

var metrics *reconcilerMetrics

func init() {
	metrics = new(reconcilerMetrics)

	metrics.syncRunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calendar_connector_sync_runs_started_count",
		Help: "The number of sync runs started",
	})

	metrics.syncRunOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_connector_sync_run_outcomes_count",
		Help: "The number of sync runs reaching each terminal state",
	}, []string{"outcome"})

	metrics.syncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sync_run_duration",
		Help: "The amount of time a sync run took from start to terminal state",
	})

	metrics.syncEventsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calendar_connector_sync_events_scanned_count",
		Help: "The number of calendar events scanned across all sync runs",
	})

	metrics.syncMeetingsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calendar_connector_sync_meetings_matched_count",
		Help: "The number of events matched to an analyst across all sync runs",
	})

	metrics.syncRequestsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calendar_connector_sync_requests_rejected_count",
		Help: "The number of sync requests rejected because a run was already in flight",
	})

	metrics.syncOutcomePublishErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calendar_connector_sync_outcome_publish_error_count",
		Help: "The number of sync outcome events that could not be published to kafka",
	})
}

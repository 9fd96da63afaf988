package meeting_repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type meetingRepositoryMetrics struct {
	sqlMeetingUpsertDuration prometheus.Histogram
	sqlMeetingListDuration   prometheus.Histogram
}

var metrics *meetingRepositoryMetrics

func init() {
	metrics = new(meetingRepositoryMetrics)

	metrics.sqlMeetingUpsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_upsert_meeting_duration",
		Help: "The amount of time it took to upsert a meeting in the db",
	})

	metrics.sqlMeetingListDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_list_meetings_duration",
		Help: "The amount of time it took to list meetings",
	})
}

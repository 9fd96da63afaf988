package connection_repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type connectionRepositoryMetrics struct {
	sqlConnectionUpsertDuration         prometheus.Histogram
	sqlConnectionLookupByIDDuration     prometheus.Histogram
	sqlConnectionLookupByUserDuration   prometheus.Histogram
	sqlConnectionListDuration           prometheus.Histogram
	sqlConnectionTokenUpdateDuration    prometheus.Histogram
	sqlConnectionSyncCompletionDuration prometheus.Histogram
	sqlConnectionDeleteDuration         prometheus.Histogram
}

var metrics *connectionRepositoryMetrics

func init() {
	metrics = new(connectionRepositoryMetrics)

	metrics.sqlConnectionUpsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_upsert_connection_duration",
		Help: "The amount of time it took to upsert a connection in the db",
	})

	metrics.sqlConnectionLookupByIDDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_lookup_connection_by_id_duration",
		Help: "The amount of time it took to lookup a connection using its id",
	})

	metrics.sqlConnectionLookupByUserDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_lookup_connection_by_user_and_account_duration",
		Help: "The amount of time it took to lookup a connection using user id and external account id",
	})

	metrics.sqlConnectionListDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_list_connections_duration",
		Help: "The amount of time it took to list connections",
	})

	metrics.sqlConnectionTokenUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_update_connection_tokens_duration",
		Help: "The amount of time it took to update a connection's tokens in the db",
	})

	metrics.sqlConnectionSyncCompletionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_record_sync_completion_duration",
		Help: "The amount of time it took to record a sync completion in the db",
	})

	metrics.sqlConnectionDeleteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_sql_delete_connection_duration",
		Help: "The amount of time it took to delete a connection from the db",
	})
}

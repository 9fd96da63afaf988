package main

import (
	"database/sql"

	"github.com/clearco/calendar-connector/internal/analyst_directory"
	"github.com/clearco/calendar-connector/internal/calendar"
	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/connection_repository"
	"github.com/clearco/calendar-connector/internal/meeting_repository"
	"github.com/clearco/calendar-connector/internal/oauth"
	"github.com/clearco/calendar-connector/internal/platform/db"
	"github.com/clearco/calendar-connector/internal/platform/logger"
	"github.com/clearco/calendar-connector/internal/platform/queue"
	"github.com/clearco/calendar-connector/internal/reconciler"
	"github.com/clearco/calendar-connector/internal/secrets"
)

// syncComponents bundles the pieces both the api server and the sync
// scheduler need to run reconciliation passes.
type syncComponents struct {
	database    *sql.DB
	connections connection_repository.ConnectionStore
	meetings    meeting_repository.MeetingStore
	vault       *secrets.TokenVault
	stateSigner *oauth.StateSigner
	connector   *oauth.Connector
	reconciler  *reconciler.Reconciler
}

func buildSyncComponents(cfg *config.Config) *syncComponents {

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		logger.LogFatalError("Unable to connect to database", err)
	}

	vault, err := secrets.NewTokenVault(cfg)
	if err != nil {
		logger.LogFatalError("Unable to initialize token vault", err)
	}

	stateSigner, err := oauth.NewStateSigner(cfg)
	if err != nil {
		logger.LogFatalError("Unable to initialize oauth state signer", err)
	}

	connectionStore, err := connection_repository.NewSqlConnectionStore(cfg, database)
	if err != nil {
		logger.LogFatalError("Unable to create connection store", err)
	}

	meetingStore, err := meeting_repository.NewSqlMeetingStore(cfg, database)
	if err != nil {
		logger.LogFatalError("Unable to create meeting store", err)
	}

	sqlDirectory, err := analyst_directory.NewSqlAnalystDirectory(cfg, database)
	if err != nil {
		logger.LogFatalError("Unable to create analyst directory", err)
	}

	directory := analyst_directory.NewCachedAnalystDirectory(sqlDirectory, cfg.AnalystDirectoryCacheTTL)

	connector := oauth.NewConnector(cfg, vault, connectionStore)

	fetcher := calendar.NewFetcher(cfg)

	publisher := buildOutcomePublisher(cfg)

	syncReconciler := reconciler.NewReconciler(cfg, connectionStore, meetingStore, connector, fetcher, directory, publisher)

	return &syncComponents{
		database:    database,
		connections: connectionStore,
		meetings:    meetingStore,
		vault:       vault,
		stateSigner: stateSigner,
		connector:   connector,
		reconciler:  syncReconciler,
	}
}

func buildOutcomePublisher(cfg *config.Config) reconciler.OutcomePublisher {

	if len(cfg.KafkaBrokers) == 0 {
		logger.Log.Info("No kafka brokers configured - sync outcome events will not be published")
		return &reconciler.NoopOutcomePublisher{}
	}

	kafkaProducerCfg := &queue.ProducerConfig{
		Brokers:    cfg.KafkaBrokers,
		Topic:      cfg.KafkaSyncEventsTopic,
		BatchSize:  cfg.KafkaSyncEventsBatchSize,
		BatchBytes: cfg.KafkaSyncEventsBatchBytes,
		Balancer:   "hash",
		SaslConfig: buildKafkaSaslConfig(cfg),
	}

	return reconciler.NewKafkaOutcomePublisher(queue.StartProducer(kafkaProducerCfg))
}

func buildKafkaSaslConfig(cfg *config.Config) *queue.SaslConfig {

	if cfg.KafkaUsername == "" {
		return nil
	}

	return &queue.SaslConfig{
		SaslMechanism: cfg.KafkaSASLMechanism,
		SaslUsername:  cfg.KafkaUsername,
		SaslPassword:  cfg.KafkaPassword,
		KafkaCA:       cfg.KafkaCA,
	}
}

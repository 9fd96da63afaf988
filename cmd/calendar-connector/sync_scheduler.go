package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"
	"github.com/clearco/calendar-connector/internal/reconciler"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func startSyncScheduler() {

	logger.InitLogger()

	logger.Log.Info("Starting Calendar-Connector sync scheduler")

	cfg := config.GetConfig()
	logger.Log.Info("Calendar-Connector configuration:\n", cfg)

	if err := cfg.Validate(); err != nil {
		logger.LogFatalError("Invalid configuration", err)
	}

	components := buildSyncComponents(cfg)

	scheduler := cron.New()

	_, err := scheduler.AddFunc(cfg.SchedulerCronSpec, func() {
		runScheduledSyncPass(cfg, components)
	})
	if err != nil {
		logger.LogFatalError("Unable to schedule the sync pass", err)
	}

	scheduler.Start()

	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	logger.Log.Info("Received signal to shutdown: ", sig)

	// let any in-flight cron invocation finish before exiting
	<-scheduler.Stop().Done()

	components.database.Close()

	logger.Log.Info("Calendar-Connector sync scheduler shutting down")
}

// runScheduledSyncPass fans the active connections out to a fixed pool of
// workers.  Each worker starts a future-window sync and drains its progress
// stream; a connection with a sync already running is skipped, not queued.
func runScheduledSyncPass(cfg *config.Config, components *syncComponents) {

	logger.Log.Info("Starting a scheduled sync pass")

	connections, err := components.connections.ListAllActive(context.Background())
	if err != nil {
		logger.LogError("Unable to list active connections for the sync pass", err)
		return
	}

	workerCount := cfg.SchedulerSyncWorkers
	if workerCount < 1 {
		workerCount = 1
	}

	pending := make(chan domain.Connection)

	var workers sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for connection := range pending {
				syncConnection(components.reconciler, connection)
			}
		}()
	}

	for _, connection := range connections {
		pending <- connection
	}
	close(pending)

	workers.Wait()

	logger.Log.WithFields(logrus.Fields{"connection_count": len(connections)}).Info("Scheduled sync pass complete")
}

func syncConnection(syncs *reconciler.Reconciler, connection domain.Connection) {

	progress, err := syncs.StartSync(context.Background(), reconciler.SyncRequest{
		ConnectionID: connection.ID,
		WindowPolicy: domain.WindowPolicyFuture,
	})

	if errors.Is(err, domain.SyncAlreadyRunningError) {
		logger.Log.WithFields(logrus.Fields{"connection_id": connection.ID}).Debug("Sync already running - skipping")
		return
	} else if err != nil {
		logger.LogErrorWithConnectionID("Unable to start scheduled sync", err, connection.ID)
		return
	}

	var terminal domain.ProgressEvent
	for event := range progress {
		terminal = event
	}

	logger.Log.WithFields(logrus.Fields{
		"connection_id":    connection.ID,
		"state":            terminal.State,
		"events_scanned":   terminal.EventsScanned,
		"meetings_matched": terminal.MeetingsMatched,
		"reason":           terminal.Reason}).Info("Scheduled sync finished")
}

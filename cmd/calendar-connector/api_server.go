package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/controller/api"
	"github.com/clearco/calendar-connector/internal/platform/logger"
	"github.com/clearco/calendar-connector/internal/platform/utils"

	"github.com/gorilla/mux"
	"github.com/redhatinsights/platform-go-middlewares/request_id"
)

func startCalendarConnectorApiServer(listenAddr string) {

	logger.InitLogger()

	logger.Log.Info("Starting Calendar-Connector service")

	cfg := config.GetConfig()
	logger.Log.Info("Calendar-Connector configuration:\n", cfg)

	if err := cfg.Validate(); err != nil {
		logger.LogFatalError("Invalid configuration", err)
	}

	components := buildSyncComponents(cfg)

	apiMux := mux.NewRouter()
	apiMux.Use(request_id.ConfiguredRequestID("x-clearco-request-id"))

	apiSubRouter := apiMux.PathPrefix(cfg.UrlBasePath).Subrouter()

	connectionServer := api.NewConnectionServer(
		components.connections,
		components.meetings,
		components.connector,
		components.stateSigner,
		components.vault,
		components.reconciler,
		apiSubRouter,
		cfg)
	connectionServer.Routes()

	monitoringServer := api.NewMonitoringServer(apiMux, cfg, components.database)
	monitoringServer.Routes()

	apiSrv := utils.StartHTTPServer(listenAddr, "api", apiMux)

	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	logger.Log.Info("Received signal to shutdown: ", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "api", apiSrv)

	components.database.Close()

	logger.Log.Info("Calendar-Connector shutting down")
}

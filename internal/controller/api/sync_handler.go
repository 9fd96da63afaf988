package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/middlewares"
	"github.com/clearco/calendar-connector/internal/platform/logger"
	"github.com/clearco/calendar-connector/internal/reconciler"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type syncStartRequest struct {
	WindowPolicy string `json:"window_policy"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

// handleSyncStart kicks off a reconciliation run and streams its progress as
// server-sent events.  The run itself is detached from this request: a
// client that walks away mid-stream does not cancel the sync.
func (s *ConnectionServer) handleSyncStart() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		connectionID := domain.ConnectionID(mux.Vars(req)["id"])
		log := logger.Log.WithFields(logrus.Fields{
			"user_id":       principal.GetUserID(),
			"connection_id": connectionID})

		connection, ok := s.loadOwnedConnection(w, req, principal, connectionID)
		if !ok {
			return
		}

		var body io.Reader = req.Body
		if req.Body == nil {
			body = strings.NewReader("")
		}

		syncRequest, err := buildSyncRequest(connection.ID, body)
		if err != nil {
			writeInvalidInputResponse(w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeInternalErrorResponse(w, log, errors.New("response writer does not support streaming"))
			return
		}

		progress, err := s.syncs.StartSync(req.Context(), syncRequest)
		if err != nil {
			writeSyncStartError(w, err)
			return
		}

		log.Info("Sync run started")

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for event := range progress {
			payload, err := json.Marshal(event)
			if err != nil {
				log.WithFields(logrus.Fields{"error": err}).Error("Unable to marshal progress event")
				continue
			}

			if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
				// the client went away; the run keeps going without us
				log.Debug("Progress stream consumer disconnected")
				return
			}
			flusher.Flush()
		}
	}
}

func (s *ConnectionServer) handleSyncCancel() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		connectionID := domain.ConnectionID(mux.Vars(req)["id"])
		log := logger.Log.WithFields(logrus.Fields{
			"user_id":       principal.GetUserID(),
			"connection_id": connectionID})

		connection, ok := s.loadOwnedConnection(w, req, principal, connectionID)
		if !ok {
			return
		}

		if err := s.syncs.CancelSync(connection.ID); err != nil {
			response := errorResponse{Title: "No sync is running for this connection",
				Status: http.StatusNotFound,
				Detail: err.Error()}
			writeJSONResponse(w, response.Status, response)
			return
		}

		log.Info("Sync run cancellation requested")

		writeJSONResponse(w, http.StatusAccepted, struct{}{})
	}
}

// buildSyncRequest parses the optional request body.  An empty body means
// the default future-only window.
func buildSyncRequest(connectionID domain.ConnectionID, body io.Reader) (reconciler.SyncRequest, error) {

	syncRequest := reconciler.SyncRequest{
		ConnectionID: connectionID,
		WindowPolicy: domain.WindowPolicyFuture,
	}

	var startRequest syncStartRequest
	if err := json.NewDecoder(body).Decode(&startRequest); err != nil {
		if err == io.EOF {
			return syncRequest, nil
		}
		return reconciler.SyncRequest{}, errors.New("Request body includes malformed json")
	}

	switch startRequest.WindowPolicy {
	case "", string(domain.WindowPolicyFuture):
		syncRequest.WindowPolicy = domain.WindowPolicyFuture
	case string(domain.WindowPolicyAll):
		syncRequest.WindowPolicy = domain.WindowPolicyAll
	case string(domain.WindowPolicyCustom):
		window, err := parseCustomWindow(startRequest.Start, startRequest.End)
		if err != nil {
			return reconciler.SyncRequest{}, err
		}
		syncRequest.WindowPolicy = domain.WindowPolicyCustom
		syncRequest.CustomWindow = window
	default:
		return reconciler.SyncRequest{}, errors.New("window_policy must be one of future, all, custom")
	}

	return syncRequest, nil
}

func parseCustomWindow(rawStart string, rawEnd string) (*domain.TimeWindow, error) {

	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		return nil, errors.New("start must be an RFC3339 timestamp")
	}

	end, err := time.Parse(time.RFC3339, rawEnd)
	if err != nil {
		return nil, errors.New("end must be an RFC3339 timestamp")
	}

	if !start.Before(end) {
		return nil, errors.New("start must be before end")
	}

	return &domain.TimeWindow{Start: start, End: end}, nil
}

func writeSyncStartError(w http.ResponseWriter, err error) {

	switch {
	case errors.Is(err, domain.SyncAlreadyRunningError):
		response := errorResponse{Title: "A sync is already running for this connection",
			Status: http.StatusConflict,
			Detail: err.Error()}
		writeJSONResponse(w, response.Status, response)
	case errors.Is(err, domain.ConnectionInactiveError):
		response := errorResponse{Title: "Connection is not active",
			Status: http.StatusConflict,
			Detail: err.Error()}
		writeJSONResponse(w, response.Status, response)
	case errors.Is(err, domain.NotFoundError):
		writeNotFoundResponse(w)
	default:
		writeInvalidInputResponse(w, err)
	}
}

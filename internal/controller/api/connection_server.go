package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/connection_repository"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/meeting_repository"
	"github.com/clearco/calendar-connector/internal/middlewares"
	"github.com/clearco/calendar-connector/internal/oauth"
	"github.com/clearco/calendar-connector/internal/platform/logger"
	"github.com/clearco/calendar-connector/internal/reconciler"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

// OAuthFlow is the slice of the oauth connector the HTTP layer needs.
type OAuthFlow interface {
	BuildAuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (oauth.TokenPair, error)
	FetchAccountIdentity(ctx context.Context, accessToken string) (oauth.AccountIdentity, error)
}

// StateCodec signs and verifies the OAuth state parameter.
type StateCodec interface {
	Sign(payload oauth.StatePayload) (string, error)
	Verify(state string) (oauth.StatePayload, error)
}

// TokenEncrypter encrypts provider credentials before they reach storage.
type TokenEncrypter interface {
	Encrypt(plaintext string) (string, error)
}

// SyncCoordinator starts and cancels reconciliation runs.
type SyncCoordinator interface {
	StartSync(ctx context.Context, request reconciler.SyncRequest) (<-chan domain.ProgressEvent, error)
	CancelSync(connectionID domain.ConnectionID) error
}

// ConnectionServer exposes the calendar connection lifecycle over REST:
// the OAuth connect flow, connection listing and management, matched
// meeting listing, and the sync progress stream.
type ConnectionServer struct {
	connections connection_repository.ConnectionStore
	meetings    meeting_repository.MeetingStore
	oauthFlow   OAuthFlow
	states      StateCodec
	vault       TokenEncrypter
	syncs       SyncCoordinator
	router      *mux.Router
	config      *config.Config
}

func NewConnectionServer(
	connections connection_repository.ConnectionStore,
	meetings meeting_repository.MeetingStore,
	oauthFlow OAuthFlow,
	states StateCodec,
	vault TokenEncrypter,
	syncs SyncCoordinator,
	r *mux.Router,
	cfg *config.Config) *ConnectionServer {

	return &ConnectionServer{
		connections: connections,
		meetings:    meetings,
		oauthFlow:   oauthFlow,
		states:      states,
		vault:       vault,
		syncs:       syncs,
		router:      r,
		config:      cfg,
	}
}

func (s *ConnectionServer) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{}

	// the provider redirects the browser here; identity comes from the
	// signed state, not from the gateway header
	callbackRouter := s.router.PathPrefix("/connections/auth/callback").Subrouter()
	callbackRouter.Use(logger.AccessLoggerMiddleware, mmw.RecordHTTPMetrics)
	callbackRouter.HandleFunc("", s.handleOAuthCallback()).Methods(http.MethodGet)

	securedSubRouter := s.router.PathPrefix("/connections").Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/auth", s.handleOAuthStart()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("", s.handleConnectionListing()).Methods(http.MethodGet)
	securedSubRouter.HandleFunc("/{id}/active", s.handleConnectionActivation()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/{id}", s.handleConnectionDelete()).Methods(http.MethodDelete)
	securedSubRouter.HandleFunc("/{id}/meetings", s.handleMeetingListing()).Methods(http.MethodGet)
	securedSubRouter.HandleFunc("/{id}/sync", s.handleSyncStart()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/{id}/sync/cancel", s.handleSyncCancel()).Methods(http.MethodPost)
}

type connectionResponse struct {
	ID           domain.ConnectionID `json:"id"`
	Title        string              `json:"title"`
	AccountEmail string              `json:"account_email"`
	Active       bool                `json:"active"`
	LastSyncedAt *string             `json:"last_synced_at"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

func buildConnectionResponse(connection domain.Connection) connectionResponse {
	response := connectionResponse{
		ID:           connection.ID,
		Title:        connection.Title,
		AccountEmail: connection.AccountEmail,
		Active:       connection.Active,
		CreatedAt:    connection.CreatedAt.UTC().Format(timestampFormat),
		UpdatedAt:    connection.UpdatedAt.UTC().Format(timestampFormat),
	}

	if connection.LastSyncedAt != nil {
		lastSyncedAt := connection.LastSyncedAt.UTC().Format(timestampFormat)
		response.LastSyncedAt = &lastSyncedAt
	}

	return response
}

func (s *ConnectionServer) handleConnectionListing() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		log := logger.Log.WithFields(logrus.Fields{"user_id": principal.GetUserID()})

		offset, limit, err := getOffsetAndLimitFromQueryParams(req)
		if err != nil {
			writeInvalidInputResponse(w, err)
			return
		}

		log.Debug("Getting connection list")

		connections, total, err := s.connections.ListForUser(req.Context(), principal.GetUserID(), offset, limit)
		if err != nil {
			writeInternalErrorResponse(w, log, err)
			return
		}

		responses := make([]connectionResponse, len(connections))
		for i, connection := range connections {
			responses[i] = buildConnectionResponse(connection)
		}

		writeJSONResponse(w, http.StatusOK, buildPaginatedResponse(req.URL, offset, limit, total, responses))
	}
}

type connectionActivationRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (s *ConnectionServer) handleConnectionActivation() http.HandlerFunc {

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

		body := http.MaxBytesReader(w, req.Body, 1048576)

		var activationRequest connectionActivationRequest
		if err := decodeJSON(body, &activationRequest); err != nil {
			writeInvalidInputResponse(w, err)
			return
		}

		log.Infof("Setting connection active flag to %t", *activationRequest.Active)

		if err := s.connections.SetActive(req.Context(), connection.ID, *activationRequest.Active); err != nil {
			writeInternalErrorResponse(w, log, err)
			return
		}

		connection.Active = *activationRequest.Active

		writeJSONResponse(w, http.StatusOK, buildConnectionResponse(connection))
	}
}

func (s *ConnectionServer) handleConnectionDelete() http.HandlerFunc {

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

		// a delete implicitly stops any in-flight sync for the connection
		s.syncs.CancelSync(connection.ID)

		log.Info("Deleting connection")

		if err := s.connections.Delete(req.Context(), connection.ID); err != nil {
			if errors.Is(err, domain.NotFoundError) {
				writeNotFoundResponse(w)
				return
			}
			writeInternalErrorResponse(w, log, err)
			return
		}

		writeJSONResponse(w, http.StatusNoContent, nil)
	}
}

// loadOwnedConnection resolves the connection and enforces ownership.  A
// connection belonging to another user is reported as not found rather than
// forbidden so connection ids are not probeable.
func (s *ConnectionServer) loadOwnedConnection(w http.ResponseWriter, req *http.Request, principal middlewares.Principal, connectionID domain.ConnectionID) (domain.Connection, bool) {

	connection, err := s.connections.FindByID(req.Context(), connectionID)
	if err != nil {
		if errors.Is(err, domain.NotFoundError) {
			writeNotFoundResponse(w)
			return domain.Connection{}, false
		}
		writeInternalErrorResponse(w, logger.Log, err)
		return domain.Connection{}, false
	}

	if connection.UserID != principal.GetUserID() {
		writeNotFoundResponse(w)
		return domain.Connection{}, false
	}

	return connection, true
}

func getOffsetAndLimitFromQueryParams(req *http.Request) (int, int, error) {

	offset := 0
	limit := defaultListLimit

	if rawOffset := req.URL.Query().Get("offset"); rawOffset != "" {
		parsedOffset, err := strconv.Atoi(rawOffset)
		if err != nil || parsedOffset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = parsedOffset
	}

	if rawLimit := req.URL.Query().Get("limit"); rawLimit != "" {
		parsedLimit, err := strconv.Atoi(rawLimit)
		if err != nil || parsedLimit < 1 || parsedLimit > maxListLimit {
			return 0, 0, errors.New("limit must be an integer between 1 and " + strconv.Itoa(maxListLimit))
		}
		limit = parsedLimit
	}

	return offset, limit, nil
}

package api

import (
	"errors"
	"net/http"

	"github.com/clearco/calendar-connector/internal/connection_repository"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/middlewares"
	"github.com/clearco/calendar-connector/internal/oauth"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

type oauthStartRequest struct {
	Title string `json:"title"`
	Nonce string `json:"nonce" validate:"required"`
}

type oauthStartResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// handleOAuthStart builds the provider consent URL for the authenticated
// user.  The caller's title and nonce round-trip through the signed state.
func (s *ConnectionServer) handleOAuthStart() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		log := logger.Log.WithFields(logrus.Fields{"user_id": principal.GetUserID()})

		body := http.MaxBytesReader(w, req.Body, 1048576)

		var startRequest oauthStartRequest
		if err := decodeJSON(body, &startRequest); err != nil {
			writeInvalidInputResponse(w, err)
			return
		}

		state, err := s.states.Sign(oauth.StatePayload{
			UserID: principal.GetUserID(),
			Title:  startRequest.Title,
			Nonce:  startRequest.Nonce,
		})
		if err != nil {
			writeInternalErrorResponse(w, log, err)
			return
		}

		log.Info("Starting OAuth connect flow")

		writeJSONResponse(w, http.StatusOK, oauthStartResponse{
			AuthorizationURL: s.oauthFlow.BuildAuthorizationURL(state),
		})
	}
}

// handleOAuthCallback completes the connect flow when the provider redirects
// back.  The user identity comes exclusively from the signed state - a
// callback without a verifiable state is rejected, never attributed to a
// fallback account.
func (s *ConnectionServer) handleOAuthCallback() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		query := req.URL.Query()

		if providerError := query.Get("error"); providerError != "" {
			logger.Log.WithFields(logrus.Fields{"error": providerError}).Info("OAuth consent was denied")
			writeInvalidInputResponse(w, errors.New("authorization was denied by the user"))
			return
		}

		state := query.Get("state")
		code := query.Get("code")
		if state == "" || code == "" {
			writeInvalidInputResponse(w, errors.New("state and code query parameters are required"))
			return
		}

		payload, err := s.states.Verify(state)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Info("OAuth state verification failed")
			writeInvalidInputResponse(w, errors.New("state parameter is invalid or expired"))
			return
		}

		log := logger.Log.WithFields(logrus.Fields{"user_id": payload.UserID})

		tokens, err := s.oauthFlow.ExchangeCode(req.Context(), code)
		if err != nil {
			var exchangeError *domain.TokenExchangeError
			if errors.As(err, &exchangeError) {
				log.WithFields(logrus.Fields{"error": err}).Info("Authorization code exchange was rejected")
				writeInvalidInputResponse(w, errors.New("authorization code was rejected by the provider"))
				return
			}
			writeInternalErrorResponse(w, log, err)
			return
		}

		identity, err := s.oauthFlow.FetchAccountIdentity(req.Context(), tokens.AccessToken)
		if err != nil {
			writeInternalErrorResponse(w, log, err)
			return
		}

		encryptedAccessToken, err := s.vault.Encrypt(tokens.AccessToken)
		if err != nil {
			writeInternalErrorResponse(w, log, err)
			return
		}

		encryptedRefreshToken, err := s.vault.Encrypt(tokens.RefreshToken)
		if err != nil {
			writeInternalErrorResponse(w, log, err)
			return
		}

		title := payload.Title
		if title == "" {
			title = identity.Email
		}

		connection, results, err := s.connections.Upsert(req.Context(), domain.Connection{
			UserID:                payload.UserID,
			Title:                 title,
			AccountEmail:          identity.Email,
			ExternalAccountID:     identity.ExternalAccountID,
			EncryptedAccessToken:  encryptedAccessToken,
			EncryptedRefreshToken: encryptedRefreshToken,
			TokenExpiry:           tokens.Expiry,
			Active:                true,
		})
		if err != nil {
			writeInternalErrorResponse(w, log, err)
			return
		}

		status := http.StatusOK
		if results == connection_repository.NewConnection {
			status = http.StatusCreated
		}

		log.WithFields(logrus.Fields{"connection_id": connection.ID}).Info("OAuth connect flow completed")

		writeJSONResponse(w, status, buildConnectionResponse(connection))
	}
}

package api

import (
	"net/http"

	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/middlewares"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type meetingResponse struct {
	ID              string              `json:"id"`
	ConnectionID    domain.ConnectionID `json:"connection_id"`
	ExternalEventID string              `json:"external_event_id"`
	Title           string              `json:"title"`
	StartsAt        string              `json:"starts_at"`
	EndsAt          string              `json:"ends_at"`
	AttendeeEmails  []string            `json:"attendee_emails"`
	AnalystID       domain.AnalystID    `json:"analyst_id,omitempty"`
	Confidence      float64             `json:"match_confidence"`
	Tags            []string            `json:"tags"`
}

func buildMeetingResponse(meeting domain.Meeting) meetingResponse {
	return meetingResponse{
		ID:              meeting.ID,
		ConnectionID:    meeting.ConnectionID,
		ExternalEventID: meeting.ExternalEventID,
		Title:           meeting.Title,
		StartsAt:        meeting.StartsAt.UTC().Format(timestampFormat),
		EndsAt:          meeting.EndsAt.UTC().Format(timestampFormat),
		AttendeeEmails:  meeting.AttendeeEmails,
		AnalystID:       meeting.AnalystID,
		Confidence:      meeting.Confidence,
		Tags:            meeting.Tags,
	}
}

func (s *ConnectionServer) handleMeetingListing() http.HandlerFunc {

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

		offset, limit, err := getOffsetAndLimitFromQueryParams(req)
		if err != nil {
			writeInvalidInputResponse(w, err)
			return
		}

		log.Debug("Getting meeting list")

		meetings, total, err := s.meetings.ListByConnection(req.Context(), connection.ID, offset, limit)
		if err != nil {
			writeInternalErrorResponse(w, log, err)
			return
		}

		responses := make([]meetingResponse, len(meetings))
		for i, meeting := range meetings {
			responses[i] = buildMeetingResponse(meeting)
		}

		writeJSONResponse(w, http.StatusOK, buildPaginatedResponse(req.URL, offset, limit, total, responses))
	}
}

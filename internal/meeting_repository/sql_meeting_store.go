package meeting_repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type SqlMeetingStore struct {
	database     *sql.DB
	queryTimeout time.Duration
}

func NewSqlMeetingStore(cfg *config.Config, database *sql.DB) (*SqlMeetingStore, error) {
	return &SqlMeetingStore{
		database:     database,
		queryTimeout: cfg.DatabaseQueryTimeout,
	}, nil
}

// Upsert inserts a newly matched meeting or refreshes an existing row.  The
// update only fires when the source event is newer than what is stored or
// the match confidence improved, so re-syncing an unchanged window is a
// write-wise no-op.
func (sms *SqlMeetingStore) Upsert(ctx context.Context, meeting domain.Meeting) (UpsertResults, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlMeetingUpsertDuration)
	defer callDurationTimer.ObserveDuration()

	log := logger.Log.WithFields(logrus.Fields{
		"connection_id":     meeting.ConnectionID,
		"external_event_id": meeting.ExternalEventID})

	ctx, cancel := context.WithTimeout(ctx, sms.queryTimeout)
	defer cancel()

	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}

	attendees, err := json.Marshal(meeting.AttendeeEmails)
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to marshal attendees")
		return MeetingUnchanged, err
	}

	tags, err := json.Marshal(meeting.Tags)
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to marshal tags")
		return MeetingUnchanged, err
	}

	row := sms.database.QueryRowContext(ctx,
		`INSERT INTO calendar_meetings
			(id, connection_id, external_event_id, title, starts_at, ends_at,
			 attendee_emails, analyst_id, match_confidence, tags, source_updated_at,
			 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		 ON CONFLICT (connection_id, external_event_id) DO UPDATE SET
			title = EXCLUDED.title,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			attendee_emails = EXCLUDED.attendee_emails,
			analyst_id = EXCLUDED.analyst_id,
			match_confidence = EXCLUDED.match_confidence,
			tags = EXCLUDED.tags,
			source_updated_at = EXCLUDED.source_updated_at,
			updated_at = now()
		 WHERE EXCLUDED.source_updated_at > calendar_meetings.source_updated_at
		    OR EXCLUDED.match_confidence > calendar_meetings.match_confidence
		 RETURNING (created_at = updated_at)`,
		meeting.ID,
		meeting.ConnectionID,
		meeting.ExternalEventID,
		meeting.Title,
		meeting.StartsAt,
		meeting.EndsAt,
		attendees,
		nullableAnalystID(meeting.AnalystID),
		meeting.Confidence,
		tags,
		meeting.SourceUpdatedAt)

	var inserted bool

	err = row.Scan(&inserted)
	if err == sql.ErrNoRows {
		// conflict hit but the stored row is at least as fresh
		return MeetingUnchanged, nil
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pgerrcode.ForeignKeyViolation {
			// the connection was deleted while the sync was running
			return MeetingUnchanged, domain.NotFoundError
		}
		log.WithFields(logrus.Fields{"error": err}).Error("SQL query failed")
		return MeetingUnchanged, err
	}

	if inserted {
		return MeetingInserted, nil
	}
	return MeetingUpdated, nil
}

// ListByConnection returns the connection's meetings, soonest first, with
// the total count for pagination.
func (sms *SqlMeetingStore) ListByConnection(ctx context.Context, connectionID domain.ConnectionID, offset int, limit int) ([]domain.Meeting, int, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlMeetingListDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, sms.queryTimeout)
	defer cancel()

	rows, err := sms.database.QueryContext(ctx,
		`SELECT id, connection_id, external_event_id, title, starts_at, ends_at,
			attendee_emails, analyst_id, match_confidence, tags, source_updated_at,
			created_at, updated_at, COUNT(*) OVER()
		 FROM calendar_meetings
		 WHERE connection_id = $1
		 ORDER BY starts_at DESC
		 OFFSET $2 LIMIT $3`,
		connectionID, offset, limit)
	if err != nil {
		logger.LogErrorWithConnectionID("SQL query failed", err, connectionID)
		return nil, 0, err
	}
	defer rows.Close()

	meetings := []domain.Meeting{}
	totalMeetings := 0

	for rows.Next() {
		var meeting domain.Meeting
		var serializedAttendees []byte
		var serializedTags []byte
		var analystID sql.NullString

		err := rows.Scan(
			&meeting.ID,
			&meeting.ConnectionID,
			&meeting.ExternalEventID,
			&meeting.Title,
			&meeting.StartsAt,
			&meeting.EndsAt,
			&serializedAttendees,
			&analystID,
			&meeting.Confidence,
			&serializedTags,
			&meeting.SourceUpdatedAt,
			&meeting.CreatedAt,
			&meeting.UpdatedAt,
			&totalMeetings)
		if err != nil {
			logger.LogErrorWithConnectionID("SQL scan failed", err, connectionID)
			return nil, 0, err
		}

		meeting.AnalystID = domain.AnalystID(analystID.String)
		meeting.AttendeeEmails = deserializeStringList(serializedAttendees)
		meeting.Tags = deserializeStringList(serializedTags)

		meetings = append(meetings, meeting)
	}

	return meetings, totalMeetings, rows.Err()
}

func nullableAnalystID(analystID domain.AnalystID) sql.NullString {
	return sql.NullString{String: string(analystID), Valid: analystID != ""}
}

func deserializeStringList(serialized []byte) []string {
	if len(serialized) == 0 {
		return nil
	}

	var values []string
	if err := json.Unmarshal(serialized, &values); err != nil {
		logger.LogError("Unable to deserialize stored list", err)
		return nil
	}
	return values
}

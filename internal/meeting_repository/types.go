package meeting_repository

import (
	"context"

	"github.com/clearco/calendar-connector/internal/domain"
)

type UpsertResults int

const (
	MeetingInserted UpsertResults = iota
	MeetingUpdated
	MeetingUnchanged
)

// MeetingStore persists matched briefings.  (connection id, external event
// id) is unique: a re-sync updates the existing row instead of duplicating
// it, and only when the source event is newer or the match improved.
// Meetings are never deleted by sync logic - a source event disappearing
// does not erase the record of a briefing that happened.
type MeetingStore interface {
	Upsert(ctx context.Context, meeting domain.Meeting) (UpsertResults, error)
	ListByConnection(ctx context.Context, connectionID domain.ConnectionID, offset int, limit int) ([]domain.Meeting, int, error)
}

package domain

import (
	"time"
)

type UserID string

func (uid UserID) String() string {
	return string(uid)
}

type ConnectionID string

func (cid ConnectionID) String() string {
	return string(cid)
}

// ExternalAccountID is the calendar provider's stable identifier for the
// authorized account (the Google "sub" claim, not the email address).
type ExternalAccountID string

func (eid ExternalAccountID) String() string {
	return string(eid)
}

type AnalystID string

func (aid AnalystID) String() string {
	return string(aid)
}

// Connection is one authorized link between an internal user and one
// external calendar account.  At most one Connection exists per
// (UserID, ExternalAccountID) pair.
type Connection struct {
	ID                ConnectionID
	UserID            UserID
	Title             string
	AccountEmail      string
	ExternalAccountID ExternalAccountID

	// Tokens are stored encrypted at rest.  The repository hands them
	// back still encrypted; only the oauth connector decrypts them.
	EncryptedAccessToken  string
	EncryptedRefreshToken string

	TokenExpiry  time.Time
	Active       bool
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Meeting is a persisted calendar event recognized as an analyst briefing.
// (ConnectionID, ExternalEventID) is unique; a re-sync updates in place.
type Meeting struct {
	ID              string
	ConnectionID    ConnectionID
	ExternalEventID string
	Title           string
	StartsAt        time.Time
	EndsAt          time.Time
	AttendeeEmails  []string
	AnalystID       AnalystID
	Confidence      float64
	Tags            []string
	SourceUpdatedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RawEvent is a calendar event as reported by the provider, reduced to the
// fields the matcher and reconciler need.
type RawEvent struct {
	ExternalID     string
	Title          string
	Description    string
	StartsAt       time.Time
	EndsAt         time.Time
	AttendeeEmails []string
	AllDay         bool
	UpdatedAt      time.Time
}

// Analyst is one entry from the analyst-directory collaborator.
type Analyst struct {
	ID            AnalystID
	DisplayName   string
	Email         string
	Company       string
	CompanyDomain string
}

// AnalystIndex is a point-in-time snapshot of the known-analyst set,
// indexed for the matcher.  Keys are lowercased.
type AnalystIndex struct {
	ByEmail  map[string]Analyst
	ByDomain map[string][]Analyst
}

type MatchTier string

const (
	MatchTierHigh   MatchTier = "high"
	MatchTierMedium MatchTier = "medium"
)

// MatchResult names the primary analyst a calendar event was matched to.
type MatchResult struct {
	Analyst    Analyst
	Confidence float64
	Tier       MatchTier
	Tags       []string
}

type WindowPolicy string

const (
	WindowPolicyFuture WindowPolicy = "future"
	WindowPolicyAll    WindowPolicy = "all"
	WindowPolicyCustom WindowPolicy = "custom"
)

// TimeWindow is a resolved, concrete [Start, End) range.  Policy resolution
// happens in the reconciler before the window reaches the event fetcher.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

type SyncState string

const (
	SyncStatePending       SyncState = "PENDING"
	SyncStateEnsuringToken SyncState = "ENSURING_TOKEN"
	SyncStateFetching      SyncState = "FETCHING"
	SyncStateMatching      SyncState = "MATCHING"
	SyncStateCompleted     SyncState = "COMPLETED"
	SyncStateCancelled     SyncState = "CANCELLED"
	SyncStateFailed        SyncState = "FAILED"
)

func (s SyncState) Terminal() bool {
	return s == SyncStateCompleted || s == SyncStateCancelled || s == SyncStateFailed
}

// ProgressEvent is one update pushed to the caller of a sync run.  Terminal
// events (COMPLETED, CANCELLED, FAILED) are always delivered; intermediate
// events may be dropped if the consumer lags.
type ProgressEvent struct {
	ConnectionID    ConnectionID `json:"connection_id"`
	State           SyncState    `json:"state"`
	EventsScanned   int          `json:"events_scanned"`
	MeetingsMatched int          `json:"meetings_matched"`
	LastMatched     string       `json:"last_matched_analyst,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	NeedsReconnect  bool         `json:"needs_reconnect,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

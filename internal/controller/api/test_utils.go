package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clearco/calendar-connector/internal/connection_repository"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/meeting_repository"
	"github.com/clearco/calendar-connector/internal/oauth"
	"github.com/clearco/calendar-connector/internal/reconciler"
)

// MockConnectionStore is an in-memory ConnectionStore used by the api tests.
type MockConnectionStore struct {
	lock        sync.Mutex
	sequence    int
	connections map[domain.ConnectionID]domain.Connection
}

func NewMockConnectionStore() *MockConnectionStore {
	return &MockConnectionStore{connections: make(map[domain.ConnectionID]domain.Connection)}
}

func (mcs *MockConnectionStore) Upsert(ctx context.Context, connection domain.Connection) (domain.Connection, connection_repository.RegistrationResults, error) {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	now := time.Now()

	for id, existing := range mcs.connections {
		if existing.UserID == connection.UserID && existing.ExternalAccountID == connection.ExternalAccountID {
			connection.ID = id
			connection.CreatedAt = existing.CreatedAt
			connection.UpdatedAt = now
			mcs.connections[id] = connection
			return connection, connection_repository.ExistingConnection, nil
		}
	}

	mcs.sequence++
	connection.ID = domain.ConnectionID(fmt.Sprintf("mock-connection-%d", mcs.sequence))
	connection.CreatedAt = now
	connection.UpdatedAt = now
	mcs.connections[connection.ID] = connection
	return connection, connection_repository.NewConnection, nil
}

func (mcs *MockConnectionStore) FindByID(ctx context.Context, connectionID domain.ConnectionID) (domain.Connection, error) {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	connection, found := mcs.connections[connectionID]
	if !found {
		return domain.Connection{}, domain.NotFoundError
	}
	return connection, nil
}

func (mcs *MockConnectionStore) FindByUserAndAccount(ctx context.Context, userID domain.UserID, accountID domain.ExternalAccountID) (domain.Connection, error) {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	for _, connection := range mcs.connections {
		if connection.UserID == userID && connection.ExternalAccountID == accountID {
			return connection, nil
		}
	}
	return domain.Connection{}, domain.NotFoundError
}

func (mcs *MockConnectionStore) ListForUser(ctx context.Context, userID domain.UserID, offset int, limit int) ([]domain.Connection, int, error) {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	var owned []domain.Connection
	for _, connection := range mcs.connections {
		if connection.UserID == userID {
			owned = append(owned, connection)
		}
	}

	total := len(owned)

	if offset >= total {
		return []domain.Connection{}, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	return owned[offset:end], total, nil
}

func (mcs *MockConnectionStore) ListActiveForUser(ctx context.Context, userID domain.UserID) ([]domain.Connection, error) {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	var active []domain.Connection
	for _, connection := range mcs.connections {
		if connection.UserID == userID && connection.Active {
			active = append(active, connection)
		}
	}
	return active, nil
}

func (mcs *MockConnectionStore) ListAllActive(ctx context.Context) ([]domain.Connection, error) {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	var active []domain.Connection
	for _, connection := range mcs.connections {
		if connection.Active {
			active = append(active, connection)
		}
	}
	return active, nil
}

func (mcs *MockConnectionStore) UpdateTokens(ctx context.Context, connectionID domain.ConnectionID, encryptedAccessToken string, encryptedRefreshToken string, expiry time.Time) error {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	connection, found := mcs.connections[connectionID]
	if !found {
		return domain.NotFoundError
	}

	connection.EncryptedAccessToken = encryptedAccessToken
	connection.EncryptedRefreshToken = encryptedRefreshToken
	connection.TokenExpiry = expiry
	mcs.connections[connectionID] = connection
	return nil
}

func (mcs *MockConnectionStore) SetActive(ctx context.Context, connectionID domain.ConnectionID, active bool) error {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	connection, found := mcs.connections[connectionID]
	if !found {
		return domain.NotFoundError
	}

	connection.Active = active
	mcs.connections[connectionID] = connection
	return nil
}

func (mcs *MockConnectionStore) RecordSyncCompletion(ctx context.Context, connectionID domain.ConnectionID, timestamp time.Time) error {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	connection, found := mcs.connections[connectionID]
	if !found {
		return domain.NotFoundError
	}

	connection.LastSyncedAt = &timestamp
	mcs.connections[connectionID] = connection
	return nil
}

func (mcs *MockConnectionStore) Delete(ctx context.Context, connectionID domain.ConnectionID) error {
	mcs.lock.Lock()
	defer mcs.lock.Unlock()

	if _, found := mcs.connections[connectionID]; !found {
		return domain.NotFoundError
	}

	delete(mcs.connections, connectionID)
	return nil
}

// MockMeetingStore is an in-memory MeetingStore used by the api tests.
type MockMeetingStore struct {
	lock     sync.Mutex
	meetings []domain.Meeting
}

func NewMockMeetingStore(meetings ...domain.Meeting) *MockMeetingStore {
	return &MockMeetingStore{meetings: meetings}
}

func (mms *MockMeetingStore) Upsert(ctx context.Context, meeting domain.Meeting) (meeting_repository.UpsertResults, error) {
	mms.lock.Lock()
	defer mms.lock.Unlock()

	mms.meetings = append(mms.meetings, meeting)
	return meeting_repository.MeetingInserted, nil
}

func (mms *MockMeetingStore) ListByConnection(ctx context.Context, connectionID domain.ConnectionID, offset int, limit int) ([]domain.Meeting, int, error) {
	mms.lock.Lock()
	defer mms.lock.Unlock()

	var owned []domain.Meeting
	for _, meeting := range mms.meetings {
		if meeting.ConnectionID == connectionID {
			owned = append(owned, meeting)
		}
	}

	total := len(owned)

	if offset >= total {
		return []domain.Meeting{}, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	return owned[offset:end], total, nil
}

// MockOAuthFlow replays canned provider responses.
type MockOAuthFlow struct {
	Tokens      oauth.TokenPair
	Identity    oauth.AccountIdentity
	ExchangeErr error
}

func (mof *MockOAuthFlow) BuildAuthorizationURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (mof *MockOAuthFlow) ExchangeCode(ctx context.Context, code string) (oauth.TokenPair, error) {
	if mof.ExchangeErr != nil {
		return oauth.TokenPair{}, mof.ExchangeErr
	}
	return mof.Tokens, nil
}

func (mof *MockOAuthFlow) FetchAccountIdentity(ctx context.Context, accessToken string) (oauth.AccountIdentity, error) {
	return mof.Identity, nil
}

// MockTokenEncrypter marks its input so tests can verify tokens were run
// through the vault before storage.
type MockTokenEncrypter struct {
}

func (mte *MockTokenEncrypter) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return "encrypted:" + plaintext, nil
}

// MockSyncCoordinator replays a canned progress stream.
type MockSyncCoordinator struct {
	lock      sync.Mutex
	Events    []domain.ProgressEvent
	StartErr  error
	CancelErr error
	started   []reconciler.SyncRequest
	cancelled []domain.ConnectionID
}

func (msc *MockSyncCoordinator) StartSync(ctx context.Context, request reconciler.SyncRequest) (<-chan domain.ProgressEvent, error) {
	msc.lock.Lock()
	defer msc.lock.Unlock()

	if msc.StartErr != nil {
		return nil, msc.StartErr
	}

	msc.started = append(msc.started, request)

	progress := make(chan domain.ProgressEvent, len(msc.Events)+1)
	for _, event := range msc.Events {
		event.ConnectionID = request.ConnectionID
		progress <- event
	}
	close(progress)

	return progress, nil
}

func (msc *MockSyncCoordinator) CancelSync(connectionID domain.ConnectionID) error {
	msc.lock.Lock()
	defer msc.lock.Unlock()

	if msc.CancelErr != nil {
		return msc.CancelErr
	}

	msc.cancelled = append(msc.cancelled, connectionID)
	return nil
}

func (msc *MockSyncCoordinator) StartedRequests() []reconciler.SyncRequest {
	msc.lock.Lock()
	defer msc.lock.Unlock()
	return append([]reconciler.SyncRequest{}, msc.started...)
}

func (msc *MockSyncCoordinator) CancelledConnections() []domain.ConnectionID {
	msc.lock.Lock()
	defer msc.lock.Unlock()
	return append([]domain.ConnectionID{}, msc.cancelled...)
}

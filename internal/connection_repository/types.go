package connection_repository

import (
	"context"
	"time"

	"github.com/clearco/calendar-connector/internal/domain"
)

type RegistrationResults int

const (
	NewConnection RegistrationResults = iota
	ExistingConnection
)

// ConnectionStore persists calendar connections.  At most one connection
// exists per (user id, external account id) pair; Upsert enforces the
// create-vs-update decision on that key.
type ConnectionStore interface {
	Upsert(ctx context.Context, connection domain.Connection) (domain.Connection, RegistrationResults, error)
	FindByID(ctx context.Context, connectionID domain.ConnectionID) (domain.Connection, error)
	FindByUserAndAccount(ctx context.Context, userID domain.UserID, accountID domain.ExternalAccountID) (domain.Connection, error)
	ListForUser(ctx context.Context, userID domain.UserID, offset int, limit int) ([]domain.Connection, int, error)
	ListActiveForUser(ctx context.Context, userID domain.UserID) ([]domain.Connection, error)
	ListAllActive(ctx context.Context) ([]domain.Connection, error)
	UpdateTokens(ctx context.Context, connectionID domain.ConnectionID, encryptedAccessToken string, encryptedRefreshToken string, expiry time.Time) error
	SetActive(ctx context.Context, connectionID domain.ConnectionID, active bool) error
	RecordSyncCompletion(ctx context.Context, connectionID domain.ConnectionID, timestamp time.Time) error
	Delete(ctx context.Context, connectionID domain.ConnectionID) error
}

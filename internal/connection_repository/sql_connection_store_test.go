//go:build sql
// +build sql

package connection_repository

import (
	"context"
	"testing"
	"time"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/db"
	"github.com/clearco/calendar-connector/internal/platform/logger"
)

func init() {
	logger.InitLogger()
}

func TestSqlConnectionStore(t *testing.T) {

	cfg := config.GetConfig()

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		t.Fatal("Unable to connect to database: ", err)
	}

	testCases := []struct {
		testName          string
		userID            domain.UserID
		externalAccountID domain.ExternalAccountID
		accountEmail      string
	}{
		{"primary account", "store-test-user-1", "store-test-google-account-1", "one@example.com"},
		{"secondary account", "store-test-user-2", "store-test-google-account-2", "two@example.com"},
	}

	for _, tc := range testCases {
		t.Run(tc.testName, func(t *testing.T) {

			var connectionStore ConnectionStore
			connectionStore, err = NewSqlConnectionStore(cfg, database)
			if err != nil {
				t.Fatal("unexpected error while creating the SqlConnectionStore", err)
			}

			connection := domain.Connection{
				UserID:                tc.userID,
				Title:                 "Work calendar",
				AccountEmail:          tc.accountEmail,
				ExternalAccountID:     tc.externalAccountID,
				EncryptedAccessToken:  "encrypted-access-token",
				EncryptedRefreshToken: "encrypted-refresh-token",
				TokenExpiry:           time.Now().Add(time.Hour),
				Active:                true,
			}

			storedConnection, registrationResults, err := connectionStore.Upsert(context.TODO(), connection)
			if err != nil {
				t.Fatal("unexpected error while upserting a connection", err)
			}

			if registrationResults != NewConnection {
				t.Fatal("expected the first upsert to create a new connection")
			}

			if storedConnection.ID == "" {
				t.Fatal("expected the stored connection to be assigned an id")
			}

			// a second upsert for the same (user, account) pair must update in place
			connection.Title = "Renamed calendar"
			updatedConnection, registrationResults, err := connectionStore.Upsert(context.TODO(), connection)
			if err != nil {
				t.Fatal("unexpected error while upserting a connection", err)
			}

			if registrationResults != ExistingConnection {
				t.Fatal("expected the second upsert to update the existing connection")
			}

			if updatedConnection.ID != storedConnection.ID {
				t.Fatal("expected the second upsert to keep the connection id", updatedConnection.ID, storedConnection.ID)
			}

			foundConnection, err := connectionStore.FindByID(context.TODO(), storedConnection.ID)
			if err != nil {
				t.Fatal("unexpected error while looking up a connection", err)
			}

			verifyConnection(t, updatedConnection, foundConnection)

			foundConnection, err = connectionStore.FindByUserAndAccount(context.TODO(), tc.userID, tc.externalAccountID)
			if err != nil {
				t.Fatal("unexpected error while looking up a connection by user and account", err)
			}

			verifyConnection(t, updatedConnection, foundConnection)

			err = connectionStore.UpdateTokens(context.TODO(), storedConnection.ID, "new-access", "new-refresh", time.Now().Add(2*time.Hour))
			if err != nil {
				t.Fatal("unexpected error while updating tokens", err)
			}

			foundConnection, err = connectionStore.FindByID(context.TODO(), storedConnection.ID)
			if err != nil {
				t.Fatal("unexpected error while looking up a connection", err)
			}

			if foundConnection.EncryptedAccessToken != "new-access" || foundConnection.EncryptedRefreshToken != "new-refresh" {
				t.Fatal("expected the stored tokens to be updated", foundConnection)
			}

			syncTime := time.Now()
			err = connectionStore.RecordSyncCompletion(context.TODO(), storedConnection.ID, syncTime)
			if err != nil {
				t.Fatal("unexpected error while recording a sync completion", err)
			}

			foundConnection, err = connectionStore.FindByID(context.TODO(), storedConnection.ID)
			if err != nil {
				t.Fatal("unexpected error while looking up a connection", err)
			}

			if foundConnection.LastSyncedAt == nil {
				t.Fatal("expected last synced at to be recorded")
			}

			err = connectionStore.SetActive(context.TODO(), storedConnection.ID, false)
			if err != nil {
				t.Fatal("unexpected error while deactivating a connection", err)
			}

			activeConnections, err := connectionStore.ListActiveForUser(context.TODO(), tc.userID)
			if err != nil {
				t.Fatal("unexpected error while listing active connections", err)
			}

			for _, activeConnection := range activeConnections {
				if activeConnection.ID == storedConnection.ID {
					t.Fatal("expected the deactivated connection to be excluded from the active list")
				}
			}

			connections, total, err := connectionStore.ListForUser(context.TODO(), tc.userID, 0, 10)
			if err != nil {
				t.Fatal("unexpected error while listing connections", err)
			}

			if total < 1 || len(connections) < 1 {
				t.Fatal("expected the deactivated connection to remain listable", total, len(connections))
			}

			err = connectionStore.Delete(context.TODO(), storedConnection.ID)
			if err != nil {
				t.Fatal("unexpected error while deleting a connection", err)
			}

			_, err = connectionStore.FindByID(context.TODO(), storedConnection.ID)
			if err != domain.NotFoundError {
				t.Fatal("found a connection when the connection was not supposed to exist", err)
			}

		})
	}
}

func TestSqlConnectionStoreOperationsOnMissingConnection(t *testing.T) {

	cfg := config.GetConfig()

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		t.Fatal("Unable to connect to database: ", err)
	}

	connectionStore, err := NewSqlConnectionStore(cfg, database)
	if err != nil {
		t.Fatal("unexpected error while creating the SqlConnectionStore", err)
	}

	missingID := domain.ConnectionID("c2b5e0f0-0000-0000-0000-000000000000")

	if err := connectionStore.SetActive(context.TODO(), missingID, true); err != domain.NotFoundError {
		t.Fatal("expected a not found error while activating a missing connection, got", err)
	}

	if err := connectionStore.Delete(context.TODO(), missingID); err != domain.NotFoundError {
		t.Fatal("expected a not found error while deleting a missing connection, got", err)
	}

	if err := connectionStore.UpdateTokens(context.TODO(), missingID, "a", "r", time.Now()); err != domain.NotFoundError {
		t.Fatal("expected a not found error while updating tokens on a missing connection, got", err)
	}
}

func verifyConnection(t *testing.T, expectedConnection, actualConnection domain.Connection) {
	if expectedConnection.ID != actualConnection.ID ||
		expectedConnection.UserID != actualConnection.UserID ||
		expectedConnection.Title != actualConnection.Title ||
		expectedConnection.ExternalAccountID != actualConnection.ExternalAccountID {
		t.Fatal("actual connection does not match expected connection", actualConnection, expectedConnection)
	}
}

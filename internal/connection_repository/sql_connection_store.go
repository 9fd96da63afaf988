package connection_repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const connectionColumns = `id, user_id, title, account_email, google_account_id,
		access_token, refresh_token, token_expiry, active, last_synced_at, created_at, updated_at`

type SqlConnectionStore struct {
	database     *sql.DB
	queryTimeout time.Duration
}

func NewSqlConnectionStore(cfg *config.Config, database *sql.DB) (*SqlConnectionStore, error) {
	return &SqlConnectionStore{
		database:     database,
		queryTimeout: cfg.DatabaseQueryTimeout,
	}, nil
}

// Upsert creates the connection on first authorization and updates it in
// place on re-authorization of the same (user, account) pair.  A reconnect
// reactivates a deactivated connection.
func (scs *SqlConnectionStore) Upsert(ctx context.Context, connection domain.Connection) (domain.Connection, RegistrationResults, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionUpsertDuration)
	defer callDurationTimer.ObserveDuration()

	log := logger.Log.WithFields(logrus.Fields{
		"user_id":    connection.UserID,
		"account_id": connection.ExternalAccountID})

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	if connection.ID == "" {
		connection.ID = domain.ConnectionID(uuid.NewString())
	}

	row := scs.database.QueryRowContext(ctx,
		`INSERT INTO calendar_connections
			(id, user_id, title, account_email, google_account_id,
			 access_token, refresh_token, token_expiry, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, now(), now())
		 ON CONFLICT (user_id, google_account_id) DO UPDATE SET
			title = EXCLUDED.title,
			account_email = EXCLUDED.account_email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			active = true,
			updated_at = now()
		 RETURNING id, last_synced_at, created_at, updated_at`,
		connection.ID,
		connection.UserID,
		connection.Title,
		connection.AccountEmail,
		connection.ExternalAccountID,
		connection.EncryptedAccessToken,
		nullableString(connection.EncryptedRefreshToken),
		connection.TokenExpiry)

	var lastSyncedAt sql.NullTime

	err := row.Scan(&connection.ID, &lastSyncedAt, &connection.CreatedAt, &connection.UpdatedAt)
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("SQL query failed")
		return connection, NewConnection, err
	}

	if lastSyncedAt.Valid {
		connection.LastSyncedAt = &lastSyncedAt.Time
	}
	connection.Active = true

	registrationResults := ExistingConnection
	if connection.CreatedAt.Equal(connection.UpdatedAt) {
		registrationResults = NewConnection
	}

	log.Debug("Registered a calendar connection")
	return connection, registrationResults, nil
}

func (scs *SqlConnectionStore) FindByID(ctx context.Context, connectionID domain.ConnectionID) (domain.Connection, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionLookupByIDDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	row := scs.database.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM calendar_connections WHERE id = $1`,
		connectionID)

	return scanConnection(row)
}

func (scs *SqlConnectionStore) FindByUserAndAccount(ctx context.Context, userID domain.UserID, accountID domain.ExternalAccountID) (domain.Connection, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionLookupByUserDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	row := scs.database.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM calendar_connections
		 WHERE user_id = $1 AND google_account_id = $2`,
		userID, accountID)

	return scanConnection(row)
}

// ListForUser returns the user's connections newest first along with the
// total count for pagination.
func (scs *SqlConnectionStore) ListForUser(ctx context.Context, userID domain.UserID, offset int, limit int) ([]domain.Connection, int, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionListDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	rows, err := scs.database.QueryContext(ctx,
		`SELECT `+connectionColumns+`, COUNT(*) OVER() FROM calendar_connections
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 OFFSET $2 LIMIT $3`,
		userID, offset, limit)
	if err != nil {
		logger.LogError("SQL query failed", err)
		return nil, 0, err
	}
	defer rows.Close()

	connections := []domain.Connection{}
	totalConnections := 0

	for rows.Next() {
		connection, total, err := scanConnectionWithTotal(rows)
		if err != nil {
			logger.LogError("SQL scan failed", err)
			return nil, 0, err
		}
		totalConnections = total
		connections = append(connections, connection)
	}

	return connections, totalConnections, rows.Err()
}

// ListActiveForUser returns only sync-eligible connections, newest first.
func (scs *SqlConnectionStore) ListActiveForUser(ctx context.Context, userID domain.UserID) ([]domain.Connection, error) {
	return scs.listActive(ctx, `WHERE user_id = $1 AND active = true`, userID)
}

// ListAllActive feeds the background scheduler.
func (scs *SqlConnectionStore) ListAllActive(ctx context.Context) ([]domain.Connection, error) {
	return scs.listActive(ctx, `WHERE active = true`)
}

func (scs *SqlConnectionStore) listActive(ctx context.Context, whereClause string, args ...interface{}) ([]domain.Connection, error) {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionListDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	rows, err := scs.database.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM calendar_connections `+whereClause+` ORDER BY created_at DESC`,
		args...)
	if err != nil {
		logger.LogError("SQL query failed", err)
		return nil, err
	}
	defer rows.Close()

	connections := []domain.Connection{}

	for rows.Next() {
		connection, err := scanConnectionRows(rows)
		if err != nil {
			logger.LogError("SQL scan failed", err)
			return nil, err
		}
		connections = append(connections, connection)
	}

	return connections, rows.Err()
}

func (scs *SqlConnectionStore) UpdateTokens(ctx context.Context, connectionID domain.ConnectionID, encryptedAccessToken string, encryptedRefreshToken string, expiry time.Time) error {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionTokenUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	return scs.execExpectingOneRow(ctx, connectionID,
		`UPDATE calendar_connections
		 SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = now()
		 WHERE id = $1`,
		connectionID, encryptedAccessToken, nullableString(encryptedRefreshToken), expiry)
}

func (scs *SqlConnectionStore) SetActive(ctx context.Context, connectionID domain.ConnectionID, active bool) error {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionTokenUpdateDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	return scs.execExpectingOneRow(ctx, connectionID,
		`UPDATE calendar_connections SET active = $2, updated_at = now() WHERE id = $1`,
		connectionID, active)
}

// RecordSyncCompletion advances the connection's last-sync timestamp.  This
// is the only mutation the sync reconciler performs on a connection outside
// of token refresh.
func (scs *SqlConnectionStore) RecordSyncCompletion(ctx context.Context, connectionID domain.ConnectionID, timestamp time.Time) error {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionSyncCompletionDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	return scs.execExpectingOneRow(ctx, connectionID,
		`UPDATE calendar_connections SET last_synced_at = $2, updated_at = now() WHERE id = $1`,
		connectionID, timestamp)
}

// Delete removes the connection; its meetings cascade in the schema.  Sync
// logic never calls this - deletion is an explicit user action.
func (scs *SqlConnectionStore) Delete(ctx context.Context, connectionID domain.ConnectionID) error {

	callDurationTimer := prometheus.NewTimer(metrics.sqlConnectionDeleteDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	return scs.execExpectingOneRow(ctx, connectionID,
		`DELETE FROM calendar_connections WHERE id = $1`,
		connectionID)
}

func (scs *SqlConnectionStore) execExpectingOneRow(ctx context.Context, connectionID domain.ConnectionID, query string, args ...interface{}) error {

	results, err := scs.database.ExecContext(ctx, query, args...)
	if err != nil {
		logger.LogErrorWithConnectionID("SQL query failed", err, connectionID)
		return err
	}

	rowsAffected, err := results.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.NotFoundError
	}

	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (domain.Connection, error) {
	connection, err := scanConnectionRows(row)
	if err == sql.ErrNoRows {
		return connection, domain.NotFoundError
	}
	return connection, err
}

func scanConnectionRows(row rowScanner) (domain.Connection, error) {
	var connection domain.Connection
	var refreshToken sql.NullString
	var lastSyncedAt sql.NullTime

	err := row.Scan(
		&connection.ID,
		&connection.UserID,
		&connection.Title,
		&connection.AccountEmail,
		&connection.ExternalAccountID,
		&connection.EncryptedAccessToken,
		&refreshToken,
		&connection.TokenExpiry,
		&connection.Active,
		&lastSyncedAt,
		&connection.CreatedAt,
		&connection.UpdatedAt)
	if err != nil {
		return connection, err
	}

	connection.EncryptedRefreshToken = refreshToken.String
	if lastSyncedAt.Valid {
		connection.LastSyncedAt = &lastSyncedAt.Time
	}

	return connection, nil
}

func scanConnectionWithTotal(rows *sql.Rows) (domain.Connection, int, error) {
	var connection domain.Connection
	var refreshToken sql.NullString
	var lastSyncedAt sql.NullTime
	var total int

	err := rows.Scan(
		&connection.ID,
		&connection.UserID,
		&connection.Title,
		&connection.AccountEmail,
		&connection.ExternalAccountID,
		&connection.EncryptedAccessToken,
		&refreshToken,
		&connection.TokenExpiry,
		&connection.Active,
		&lastSyncedAt,
		&connection.CreatedAt,
		&connection.UpdatedAt,
		&total)
	if err != nil {
		return connection, 0, err
	}

	connection.EncryptedRefreshToken = refreshToken.String
	if lastSyncedAt.Valid {
		connection.LastSyncedAt = &lastSyncedAt.Time
	}

	return connection, total, nil
}

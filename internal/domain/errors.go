package domain

import (
	"errors"
	"fmt"
)

// NotFoundError is returned by the repositories when a lookup matches no rows.
var NotFoundError = errors.New("not found")

// SyncAlreadyRunningError rejects a second sync request for a connection that
// already has one in flight.  The caller may retry once the run finishes.
var SyncAlreadyRunningError = errors.New("a sync is already running for this connection")

// SyncTimeoutError force-fails a run that exceeded the overall sync ceiling.
var SyncTimeoutError = errors.New("sync run exceeded the maximum allowed duration")

// ConnectionInactiveError rejects a sync request against a connection whose
// owner has suspended it.  Reactivating the connection restores eligibility.
var ConnectionInactiveError = errors.New("connection is not active")

// ConfigurationError aborts process startup when a required setting is absent
// or malformed.  It is never retried.
type ConfigurationError struct {
	Setting string
	Detail  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Setting, e.Detail)
}

// TokenExchangeError reports the provider rejecting an authorization code
// (expired, already used, redirect URI mismatch).
type TokenExchangeError struct {
	Err error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("authorization code exchange rejected: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// ReauthorizationRequiredError means the stored credentials for a connection
// can no longer be refreshed (no refresh token, or consent was revoked).  It
// is terminal for the connection until the user re-authorizes.
type ReauthorizationRequiredError struct {
	ConnectionID ConnectionID
	Err          error
}

func (e *ReauthorizationRequiredError) Error() string {
	return fmt.Sprintf("connection %s requires re-authorization: %v", e.ConnectionID, e.Err)
}

func (e *ReauthorizationRequiredError) Unwrap() error {
	return e.Err
}

// EventFetchError reports a page fetch that kept failing after the retry
// budget was spent.  EventsYielded tells the reconciler how many events were
// already handed off before the failure, so a partial sync can stand.
type EventFetchError struct {
	EventsYielded int
	Err           error
}

func (e *EventFetchError) Error() string {
	return fmt.Sprintf("event fetch failed after %d events: %v", e.EventsYielded, e.Err)
}

func (e *EventFetchError) Unwrap() error {
	return e.Err
}

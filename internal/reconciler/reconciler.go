package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clearco/calendar-connector/internal/analyst_directory"
	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/connection_repository"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/matcher"
	"github.com/clearco/calendar-connector/internal/meeting_repository"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// primaryCalendarID is the provider's alias for the authorized account's own
// calendar.
const primaryCalendarID = "primary"

// TokenEnsurer hands back a usable access token for a connection, refreshing
// the stored credentials if they are about to expire.
type TokenEnsurer interface {
	EnsureValidToken(ctx context.Context, connection *domain.Connection) (string, error)
}

// EventSource walks the provider's events for a resolved window, handing each
// page to pageFn.  A pageFn error stops the walk and is returned unchanged.
type EventSource interface {
	FetchPages(ctx context.Context, accessToken string, calendarID string, window domain.TimeWindow, pageFn func([]domain.RawEvent) error) error
}

// SyncRequest is one caller-initiated reconciliation pass.
type SyncRequest struct {
	ConnectionID domain.ConnectionID
	WindowPolicy domain.WindowPolicy
	CustomWindow *domain.TimeWindow
}

// Reconciler drives the sync state machine:
//
//	PENDING -> ENSURING_TOKEN -> FETCHING <-> MATCHING -> COMPLETED
//
// with FAILED reachable from any non-terminal state and CANCELLED reachable
// between pages.  One run per connection is allowed at a time.
type Reconciler struct {
	connections connection_repository.ConnectionStore
	meetings    meeting_repository.MeetingStore
	tokens      TokenEnsurer
	events      EventSource
	directory   analyst_directory.AnalystDirectory
	publisher   OutcomePublisher
	guard       *syncGuard

	runTimeout         time.Duration
	progressBufferSize int

	nowFn func() time.Time
}

func NewReconciler(
	cfg *config.Config,
	connections connection_repository.ConnectionStore,
	meetings meeting_repository.MeetingStore,
	tokens TokenEnsurer,
	events EventSource,
	directory analyst_directory.AnalystDirectory,
	publisher OutcomePublisher) *Reconciler {

	progressBufferSize := cfg.SyncProgressBufferSize
	if progressBufferSize < 1 {
		progressBufferSize = 1
	}

	return &Reconciler{
		connections: connections,
		meetings:    meetings,
		tokens:      tokens,
		events:      events,
		directory:   directory,
		publisher:   publisher,
		guard:       newSyncGuard(),

		runTimeout:         cfg.SyncRunTimeout,
		progressBufferSize: progressBufferSize,

		nowFn: time.Now,
	}
}

// StartSync begins a reconciliation pass for the connection and returns the
// progress stream.  The run is detached from the caller's context: a consumer
// walking away does not stop the sync, only CancelSync or the run timeout do.
// Intermediate progress events may be dropped if the consumer lags; the
// terminal COMPLETED / CANCELLED / FAILED event is always delivered.
func (r *Reconciler) StartSync(ctx context.Context, request SyncRequest) (<-chan domain.ProgressEvent, error) {

	connection, err := r.connections.FindByID(ctx, request.ConnectionID)
	if err != nil {
		return nil, err
	}

	if !connection.Active {
		return nil, domain.ConnectionInactiveError
	}

	window, err := resolveWindow(request.WindowPolicy, request.CustomWindow, r.nowFn())
	if err != nil {
		return nil, err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())

	if err := r.guard.acquire(connection.ID, cancelRun); err != nil {
		cancelRun()
		metrics.syncRequestsRejected.Inc()
		return nil, err
	}

	metrics.syncRunsStarted.Inc()

	progress := make(chan domain.ProgressEvent, r.progressBufferSize)

	go r.run(runCtx, cancelRun, connection, window, progress)

	return progress, nil
}

// CancelSync stops the in-flight run for the connection.  The run reacts
// between pages, not mid-page.  Returns NotFoundError when no run is in
// flight.
func (r *Reconciler) CancelSync(connectionID domain.ConnectionID) error {
	if !r.guard.cancel(connectionID) {
		return domain.NotFoundError
	}
	return nil
}

// syncRun is the working state of one reconciliation pass.  It exists only
// for the duration of the run and is surfaced through progress events.
type syncRun struct {
	connection      domain.Connection
	state           domain.SyncState
	eventsScanned   int
	meetingsMatched int
	lastMatched     string
}

func (r *Reconciler) run(ctx context.Context, cancelRun context.CancelFunc, connection domain.Connection, window domain.TimeWindow, progress chan domain.ProgressEvent) {

	defer cancelRun()
	defer r.guard.release(connection.ID)
	defer close(progress)

	runDurationTimer := prometheus.NewTimer(metrics.syncRunDuration)
	defer runDurationTimer.ObserveDuration()

	log := logger.Log.WithFields(logrus.Fields{"connection_id": connection.ID})

	run := &syncRun{connection: connection, state: domain.SyncStatePending}

	ctx, cancelTimeout := context.WithTimeout(ctx, r.runTimeout)
	defer cancelTimeout()

	terminal := r.execute(ctx, run, window, progress, log)

	metrics.syncRunOutcomes.With(prometheus.Labels{"outcome": string(terminal.State)}).Inc()

	log.WithFields(logrus.Fields{
		"state":            terminal.State,
		"events_scanned":   terminal.EventsScanned,
		"meetings_matched": terminal.MeetingsMatched,
		"reason":           terminal.Reason}).Info("Sync run finished")

	r.emitTerminal(progress, terminal)

	r.publisher.PublishSyncOutcome(context.Background(), terminal)
}

// execute walks the state machine and returns the terminal progress event.
// All sync-time errors are converted into a structured FAILED (or CANCELLED)
// event here; nothing escapes as a raw error.
func (r *Reconciler) execute(ctx context.Context, run *syncRun, window domain.TimeWindow, progress chan domain.ProgressEvent, log logrus.FieldLogger) domain.ProgressEvent {

	r.transition(run, domain.SyncStateEnsuringToken, progress)

	accessToken, err := r.tokens.EnsureValidToken(ctx, &run.connection)
	if err != nil {
		var reauthorizationRequired *domain.ReauthorizationRequiredError
		if errors.As(err, &reauthorizationRequired) {
			log.WithFields(logrus.Fields{"error": err}).Warn("Connection requires re-authorization")
			terminal := r.terminalEvent(run, domain.SyncStateFailed, "connection requires re-authorization")
			terminal.NeedsReconnect = true
			return terminal
		}
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to obtain a valid access token")
		return r.terminalEvent(run, domain.SyncStateFailed, "unable to obtain a valid access token")
	}

	analystIndex, err := r.directory.GetAnalystIndex(ctx)
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to load the analyst directory")
		return r.terminalEvent(run, domain.SyncStateFailed, "unable to load the analyst directory")
	}

	r.transition(run, domain.SyncStateFetching, progress)

	err = r.events.FetchPages(ctx, accessToken, primaryCalendarID, window, func(page []domain.RawEvent) error {

		// cancellation and timeout are honored between pages, never mid-page
		if err := ctx.Err(); err != nil {
			return err
		}

		r.transition(run, domain.SyncStateMatching, progress)

		for i := range page {
			if err := r.processEvent(ctx, run, page[i], analystIndex); err != nil {
				return err
			}
			r.emitUpdate(run, progress)
		}

		r.transition(run, domain.SyncStateFetching, progress)
		return nil
	})

	if err != nil {
		return r.classifyFailure(ctx, run, err, log)
	}

	completedAt := r.nowFn()
	if err := r.connections.RecordSyncCompletion(ctx, run.connection.ID, completedAt); err != nil {
		log.WithFields(logrus.Fields{"error": err}).Error("Unable to record the sync completion")
		return r.terminalEvent(run, domain.SyncStateFailed, "unable to record the sync completion")
	}

	return r.terminalEvent(run, domain.SyncStateCompleted, "")
}

func (r *Reconciler) processEvent(ctx context.Context, run *syncRun, event domain.RawEvent, analystIndex domain.AnalystIndex) error {

	run.eventsScanned++
	metrics.syncEventsScanned.Inc()

	matchResult := matcher.Match(event, analystIndex)
	if matchResult == nil {
		return nil
	}

	meeting := domain.Meeting{
		ConnectionID:    run.connection.ID,
		ExternalEventID: event.ExternalID,
		Title:           event.Title,
		StartsAt:        event.StartsAt,
		EndsAt:          event.EndsAt,
		AttendeeEmails:  event.AttendeeEmails,
		AnalystID:       matchResult.Analyst.ID,
		Confidence:      matchResult.Confidence,
		Tags:            matchResult.Tags,
		SourceUpdatedAt: event.UpdatedAt,
	}

	if _, err := r.meetings.Upsert(ctx, meeting); err != nil {
		return err
	}

	run.meetingsMatched++
	run.lastMatched = matchResult.Analyst.DisplayName
	metrics.syncMeetingsMatched.Inc()

	return nil
}

// classifyFailure maps an error out of the fetch/match loop to its terminal
// state.  Cancellation is a soft stop, not a failure; the timeout is reported
// distinctly so a wedged run is distinguishable from a provider outage.
func (r *Reconciler) classifyFailure(ctx context.Context, run *syncRun, err error, log logrus.FieldLogger) domain.ProgressEvent {

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("Sync run timed out")
		return r.terminalEvent(run, domain.SyncStateFailed, domain.SyncTimeoutError.Error())
	}

	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return r.terminalEvent(run, domain.SyncStateCancelled, "")
	}

	var fetchError *domain.EventFetchError
	if errors.As(err, &fetchError) {
		log.WithFields(logrus.Fields{"error": err}).Error("Event fetch failed")
		return r.terminalEvent(run, domain.SyncStateFailed,
			fmt.Sprintf("event fetch failed after %d events", fetchError.EventsYielded))
	}

	if errors.Is(err, domain.NotFoundError) {
		log.Warn("Connection disappeared while the sync was running")
		return r.terminalEvent(run, domain.SyncStateFailed, "connection no longer exists")
	}

	log.WithFields(logrus.Fields{"error": err}).Error("Sync run failed")
	return r.terminalEvent(run, domain.SyncStateFailed, "sync run failed")
}

func (r *Reconciler) transition(run *syncRun, state domain.SyncState, progress chan domain.ProgressEvent) {
	if run.state == state {
		return
	}
	run.state = state
	r.emitUpdate(run, progress)
}

// emitUpdate pushes an intermediate progress event without ever blocking the
// run.  A full buffer means the consumer is lagging; dropping updates is fine,
// the terminal event carries the final counts.
func (r *Reconciler) emitUpdate(run *syncRun, progress chan domain.ProgressEvent) {
	select {
	case progress <- r.progressEvent(run, ""):
	default:
	}
}

// emitTerminal delivers the terminal event, evicting the oldest buffered
// update if the consumer has not kept up.  The terminal event is never
// dropped.
func (r *Reconciler) emitTerminal(progress chan domain.ProgressEvent, event domain.ProgressEvent) {
	for {
		select {
		case progress <- event:
			return
		default:
			select {
			case <-progress:
			default:
			}
		}
	}
}

func (r *Reconciler) terminalEvent(run *syncRun, state domain.SyncState, reason string) domain.ProgressEvent {
	run.state = state
	return r.progressEvent(run, reason)
}

func (r *Reconciler) progressEvent(run *syncRun, reason string) domain.ProgressEvent {
	return domain.ProgressEvent{
		ConnectionID:    run.connection.ID,
		State:           run.state,
		EventsScanned:   run.eventsScanned,
		MeetingsMatched: run.meetingsMatched,
		LastMatched:     run.lastMatched,
		Reason:          reason,
		Timestamp:       r.nowFn(),
	}
}

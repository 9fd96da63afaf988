package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	pageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "calendar_connector_event_page_fetch_duration",
		Help: "The amount of time it took to fetch one page of calendar events",
	})

	pageFetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calendar_connector_event_page_fetch_retries",
		Help: "The number of transient page fetch failures that were retried",
	})
)

// Fetcher pages through a Google calendar's events for a bounded, already
// resolved time window.  Each FetchPages call starts a fresh page cursor.
type Fetcher struct {
	pageSize      int64
	maxAttempts   int
	retryDelay    time.Duration
	httpTimeout   time.Duration
	clientOptions []option.ClientOption
	sleepFn       func(context.Context, time.Duration) error
}

func NewFetcher(cfg *config.Config) *Fetcher {
	return &Fetcher{
		pageSize:    int64(cfg.EventFetchPageSize),
		maxAttempts: cfg.EventFetchMaxAttempts,
		retryDelay:  cfg.EventFetchRetryDelay,
		httpTimeout: cfg.EventFetchHttpTimeout,
		sleepFn:     sleepWithContext,
	}
}

// FetchPages walks the provider's page tokens until exhausted, handing each
// page of mapped events to pageFn.  An error returned by pageFn stops the
// walk and propagates unchanged (this is how cancellation between pages
// works).  A page fetch that keeps failing after the retry budget is spent
// fails the whole fetch with EventFetchError, which carries how many events
// were already handed off.
func (f *Fetcher) FetchPages(ctx context.Context, accessToken string, calendarID string, window domain.TimeWindow, pageFn func([]domain.RawEvent) error) error {

	log := logger.Log.WithFields(logrus.Fields{"calendar_id": calendarID})

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})

	opts := append([]option.ClientOption{option.WithTokenSource(tokenSource)}, f.clientOptions...)

	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to create the calendar service: %w", err)
	}

	pageToken := ""
	yielded := 0
	page := 0

	for {
		events, err := f.fetchPageWithRetry(ctx, service, calendarID, window, pageToken)
		if err != nil {
			return &domain.EventFetchError{EventsYielded: yielded, Err: err}
		}

		page++

		rawEvents := mapEvents(events.Items)
		yielded += len(rawEvents)

		log.WithFields(logrus.Fields{"page": page, "events": len(rawEvents)}).Debug("Fetched a page of calendar events")

		if err := pageFn(rawEvents); err != nil {
			return err
		}

		if events.NextPageToken == "" {
			return nil
		}
		pageToken = events.NextPageToken
	}
}

func (f *Fetcher) fetchPageWithRetry(ctx context.Context, service *gcal.Service, calendarID string, window domain.TimeWindow, pageToken string) (*gcal.Events, error) {

	var lastErr error

	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			pageFetchRetries.Inc()
			if err := f.sleepFn(ctx, f.retryDelay<<uint(attempt-1)); err != nil {
				return nil, err
			}
		}

		events, err := f.fetchPage(ctx, service, calendarID, window, pageToken)
		if err == nil {
			return events, nil
		}

		lastErr = err

		if !isTransient(err) {
			return nil, err
		}

		logger.Log.WithFields(logrus.Fields{
			"calendar_id": calendarID,
			"attempt":     attempt + 1,
			"error":       err,
		}).Warn("Transient failure while fetching a page of calendar events")
	}

	return nil, lastErr
}

func (f *Fetcher) fetchPage(ctx context.Context, service *gcal.Service, calendarID string, window domain.TimeWindow, pageToken string) (*gcal.Events, error) {

	callDurationTimer := prometheus.NewTimer(pageFetchDuration)
	defer callDurationTimer.ObserveDuration()

	callCtx := ctx
	if f.httpTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.httpTimeout)
		defer cancel()
	}

	call := service.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(window.Start.Format(time.RFC3339)).
		TimeMax(window.End.Format(time.RFC3339)).
		MaxResults(f.pageSize).
		Context(callCtx)

	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	return call.Do()
}

// Rate limits and provider-side errors are worth retrying; anything else
// (bad token, nonexistent calendar) fails immediately.
func isTransient(err error) bool {
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	// transport-level failures (connection reset, timeout) arrive as plain
	// url errors rather than googleapi errors
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func mapEvents(items []*gcal.Event) []domain.RawEvent {
	rawEvents := make([]domain.RawEvent, 0, len(items))

	for _, item := range items {
		if item == nil || item.Status == "cancelled" {
			continue
		}

		rawEvent, ok := mapEvent(item)
		if !ok {
			continue
		}

		rawEvents = append(rawEvents, rawEvent)
	}

	return rawEvents
}

func mapEvent(item *gcal.Event) (domain.RawEvent, bool) {

	startsAt, allDay, ok := parseEventTime(item.Start)
	if !ok {
		return domain.RawEvent{}, false
	}

	endsAt, _, _ := parseEventTime(item.End)

	var attendees []string
	for _, attendee := range item.Attendees {
		if attendee == nil || attendee.Email == "" || attendee.Resource {
			continue
		}
		attendees = append(attendees, attendee.Email)
	}

	updatedAt, _ := time.Parse(time.RFC3339, item.Updated)

	return domain.RawEvent{
		ExternalID:     item.Id,
		Title:          item.Summary,
		Description:    item.Description,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		AttendeeEmails: attendees,
		AllDay:         allDay,
		UpdatedAt:      updatedAt,
	}, true
}

func parseEventTime(edt *gcal.EventDateTime) (time.Time, bool, bool) {
	if edt == nil {
		return time.Time{}, false, false
	}

	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, false, true
	}

	if edt.Date != "" {
		t, err := time.Parse("2006-01-02", edt.Date)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, true, true
	}

	return time.Time{}, false, false
}

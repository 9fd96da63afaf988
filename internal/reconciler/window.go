package reconciler

import (
	"errors"
	"time"

	"github.com/clearco/calendar-connector/internal/domain"
)

// futureHorizon bounds how far ahead any resolved window reaches.  Calendars
// with open-ended recurring events would otherwise page forever.
const futureHorizon = 6 * 30 * 24 * time.Hour

// allHistoryStart is the earliest instant the "all" policy reaches back to.
var allHistoryStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

var errInvalidCustomWindow = errors.New("custom window requires a start before its end")

// resolveWindow turns a window policy into a concrete [start, end) range.
// The event fetcher only ever sees resolved instants.
func resolveWindow(policy domain.WindowPolicy, custom *domain.TimeWindow, now time.Time) (domain.TimeWindow, error) {

	switch policy {
	case domain.WindowPolicyFuture:
		return domain.TimeWindow{Start: now, End: now.Add(futureHorizon)}, nil
	case domain.WindowPolicyAll:
		return domain.TimeWindow{Start: allHistoryStart, End: now.Add(futureHorizon)}, nil
	case domain.WindowPolicyCustom:
		if custom == nil || !custom.Start.Before(custom.End) {
			return domain.TimeWindow{}, errInvalidCustomWindow
		}
		return *custom, nil
	default:
		return domain.TimeWindow{Start: now, End: now.Add(futureHorizon)}, nil
	}
}

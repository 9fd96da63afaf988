package matcher

import (
	"strings"

	"github.com/clearco/calendar-connector/internal/domain"
)

const (
	HighConfidence   = 1.0
	MediumConfidence = 0.5
)

// Match decides whether a calendar event is a briefing with a tracked
// analyst.  Exact attendee-email matches win over company-domain matches;
// when several attendees match, the first one in attendee-list order is the
// primary analyst.  Returns nil when no attendee overlaps the known-analyst
// set.  Pure function: no I/O, deterministic for a given event and index.
func Match(event domain.RawEvent, index domain.AnalystIndex) *domain.MatchResult {

	var exactMatches []domain.Analyst

	for _, attendee := range event.AttendeeEmails {
		email := NormalizeEmail(attendee)
		if email == "" {
			continue
		}

		if analyst, ok := index.ByEmail[email]; ok {
			exactMatches = append(exactMatches, analyst)
		}
	}

	if len(exactMatches) > 0 {
		primary := exactMatches[0]
		return &domain.MatchResult{
			Analyst:    primary,
			Confidence: HighConfidence,
			Tier:       domain.MatchTierHigh,
			Tags:       buildTags(primary, domain.MatchTierHigh, exactMatches[1:]),
		}
	}

	for _, attendee := range event.AttendeeEmails {
		domainPart := EmailDomain(attendee)
		if domainPart == "" {
			continue
		}

		analysts, ok := index.ByDomain[domainPart]
		if !ok || len(analysts) == 0 {
			continue
		}

		primary := analysts[0]
		return &domain.MatchResult{
			Analyst:    primary,
			Confidence: MediumConfidence,
			Tier:       domain.MatchTierMedium,
			Tags:       buildTags(primary, domain.MatchTierMedium, nil),
		}
	}

	return nil
}

// NormalizeEmail lowercases and trims an address for index lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain extracts the normalized domain part of an address, or ""
// when the address is not of the form local@domain.
func EmailDomain(email string) string {
	normalized := NormalizeEmail(email)
	at := strings.LastIndex(normalized, "@")
	if at <= 0 || at == len(normalized)-1 {
		return ""
	}
	return normalized[at+1:]
}

// Tags record the matched firm and the match tier on the meeting.  Secondary
// exact matches (several tracked analysts in the same meeting) are kept as
// tags so the association is not lost even though only the primary analyst
// is linked.
func buildTags(primary domain.Analyst, tier domain.MatchTier, secondary []domain.Analyst) []string {
	tags := []string{"match:" + string(tier)}

	if primary.Company != "" {
		tags = append(tags, "firm:"+primary.Company)
	}

	seen := map[domain.AnalystID]bool{primary.ID: true}
	for _, analyst := range secondary {
		if seen[analyst.ID] {
			continue
		}
		seen[analyst.ID] = true
		tags = append(tags, "also:"+string(analyst.ID))
	}

	return tags
}

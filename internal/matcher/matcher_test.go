package matcher

import (
	"testing"
	"time"

	"github.com/clearco/calendar-connector/internal/domain"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
)

var (
	gartnerAnalyst = domain.Analyst{
		ID:            "analyst-sarah-chen",
		DisplayName:   "Sarah Chen",
		Email:         "sarah.chen@gartner.com",
		Company:       "Gartner",
		CompanyDomain: "gartner.com",
	}

	forresterAnalyst = domain.Analyst{
		ID:            "analyst-bob-iyer",
		DisplayName:   "Bob Iyer",
		Email:         "bob.iyer@forrester.com",
		Company:       "Forrester",
		CompanyDomain: "forrester.com",
	}
)

func buildTestIndex() domain.AnalystIndex {
	return domain.AnalystIndex{
		ByEmail: map[string]domain.Analyst{
			"sarah.chen@gartner.com": gartnerAnalyst,
			"bob.iyer@forrester.com": forresterAnalyst,
		},
		ByDomain: map[string][]domain.Analyst{
			"gartner.com":   {gartnerAnalyst},
			"forrester.com": {forresterAnalyst},
		},
	}
}

func buildTestEvent(attendees ...string) domain.RawEvent {
	return domain.RawEvent{
		ExternalID:     "evt-1",
		Title:          "Briefing",
		StartsAt:       time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		EndsAt:         time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC),
		AttendeeEmails: attendees,
	}
}

func TestExactEmailMatchIsHighConfidence(t *testing.T) {

	testCases := []struct {
		testName string
		attendee string
	}{
		{"plain address", "sarah.chen@gartner.com"},
		{"mixed case", "Sarah.Chen@Gartner.COM"},
		{"surrounding whitespace", "  sarah.chen@gartner.com  "},
	}

	index := buildTestIndex()

	for _, tc := range testCases {
		t.Run(tc.testName, func(t *testing.T) {
			result := Match(buildTestEvent("host@clearco.example", tc.attendee), index)

			if result == nil {
				t.Fatal("expected a match")
			}
			assert.Equal(t, result.Analyst.ID, gartnerAnalyst.ID)
			assert.Equal(t, result.Confidence, HighConfidence)
			assert.Equal(t, result.Tier, domain.MatchTierHigh)
		})
	}
}

func TestDomainOnlyMatchIsMediumConfidence(t *testing.T) {
	index := buildTestIndex()

	result := Match(buildTestEvent("someone@forrester.com"), index)

	if result == nil {
		t.Fatal("expected a match")
	}
	assert.Equal(t, result.Analyst.ID, forresterAnalyst.ID)
	assert.Equal(t, result.Confidence, MediumConfidence)
	assert.Equal(t, result.Tier, domain.MatchTierMedium)
}

func TestNoOverlapYieldsNoMatch(t *testing.T) {
	index := buildTestIndex()

	result := Match(buildTestEvent("random@unknown.com", "host@clearco.example"), index)

	assert.Equal(t, result, (*domain.MatchResult)(nil))
}

func TestExactMatchBeatsDomainMatch(t *testing.T) {
	index := buildTestIndex()

	// the domain-only attendee comes first, the exact match still wins
	result := Match(buildTestEvent("colleague@gartner.com", "bob.iyer@forrester.com"), index)

	if result == nil {
		t.Fatal("expected a match")
	}
	assert.Equal(t, result.Analyst.ID, forresterAnalyst.ID)
	assert.Equal(t, result.Tier, domain.MatchTierHigh)
}

func TestMultipleExactMatchesPickFirstByAttendeeOrder(t *testing.T) {
	index := buildTestIndex()

	result := Match(buildTestEvent("bob.iyer@forrester.com", "sarah.chen@gartner.com"), index)

	if result == nil {
		t.Fatal("expected a match")
	}
	assert.Equal(t, result.Analyst.ID, forresterAnalyst.ID)

	foundSecondaryTag := false
	for _, tag := range result.Tags {
		if tag == "also:"+string(gartnerAnalyst.ID) {
			foundSecondaryTag = true
		}
	}
	if !foundSecondaryTag {
		t.Fatal("expected the secondary analyst to be recorded as a tag", result.Tags)
	}
}

func TestMalformedAttendeesAreSkipped(t *testing.T) {
	index := buildTestIndex()

	result := Match(buildTestEvent("", "not-an-email", "@gartner.com", "sarah.chen@gartner.com"), index)

	if result == nil {
		t.Fatal("expected a match")
	}
	assert.Equal(t, result.Analyst.ID, gartnerAnalyst.ID)
}

func TestMatchTagsIncludeFirmAndTier(t *testing.T) {
	index := buildTestIndex()

	result := Match(buildTestEvent("sarah.chen@gartner.com"), index)

	if result == nil {
		t.Fatal("expected a match")
	}
	expectedTags := []string{"match:high", "firm:Gartner"}
	if diff := cmp.Diff(expectedTags, result.Tags); diff != "" {
		t.Fatal("unexpected tags:", diff)
	}
}

func TestEmailDomain(t *testing.T) {

	testCases := []struct {
		testName string
		email    string
		expected string
	}{
		{"plain", "a@b.com", "b.com"},
		{"uppercase", "A@B.COM", "b.com"},
		{"no at sign", "nodomain", ""},
		{"empty local part", "@b.com", ""},
		{"trailing at sign", "a@", ""},
		{"empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.testName, func(t *testing.T) {
			assert.Equal(t, EmailDomain(tc.email), tc.expected)
		})
	}
}

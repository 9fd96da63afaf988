package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clearco/calendar-connector/internal/domain"
)

func parseEventStream(body string) []domain.ProgressEvent {
	var events []domain.ProgressEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event domain.ProgressEvent
		Expect(json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event)).To(Succeed())
		events = append(events, event)
	}
	return events
}

var _ = Describe("Sync endpoints", func() {

	var fixture *serverFixture

	BeforeEach(func() {
		fixture = buildServerFixture()
	})

	Describe("Starting a sync", func() {

		It("Should stream progress events and end with the terminal event", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			fixture.syncs.Events = []domain.ProgressEvent{
				{State: domain.SyncStateEnsuringToken, Timestamp: time.Now()},
				{State: domain.SyncStateFetching, Timestamp: time.Now()},
				{State: domain.SyncStateCompleted, EventsScanned: 3, MeetingsMatched: 2, Timestamp: time.Now()},
			}

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync", CONNECTIONS_ENDPOINT, connection.ID),
				strings.NewReader("{\"window_policy\": \"future\"}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get("Content-Type")).To(Equal("text/event-stream"))

			events := parseEventStream(rr.Body.String())
			Expect(events).To(HaveLen(3))

			terminal := events[len(events)-1]
			Expect(terminal.State).To(Equal(domain.SyncStateCompleted))
			Expect(terminal.EventsScanned).To(Equal(3))
			Expect(terminal.MeetingsMatched).To(Equal(2))

			started := fixture.syncs.StartedRequests()
			Expect(started).To(HaveLen(1))
			Expect(started[0].ConnectionID).To(Equal(connection.ID))
			Expect(started[0].WindowPolicy).To(Equal(domain.WindowPolicyFuture))
		})

		It("Should default to the future window when the body is empty", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusOK))

			started := fixture.syncs.StartedRequests()
			Expect(started).To(HaveLen(1))
			Expect(started[0].WindowPolicy).To(Equal(domain.WindowPolicyFuture))
		})

		It("Should pass a custom window through to the coordinator", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync", CONNECTIONS_ENDPOINT, connection.ID),
				strings.NewReader("{\"window_policy\": \"custom\", \"start\": \"2026-01-01T00:00:00Z\", \"end\": \"2026-02-01T00:00:00Z\"}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusOK))

			started := fixture.syncs.StartedRequests()
			Expect(started).To(HaveLen(1))
			Expect(started[0].WindowPolicy).To(Equal(domain.WindowPolicyCustom))
			Expect(started[0].CustomWindow).NotTo(BeNil())
			Expect(started[0].CustomWindow.Start).To(Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("Should reject a custom window without timestamps", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync", CONNECTIONS_ENDPOINT, connection.ID),
				strings.NewReader("{\"window_policy\": \"custom\"}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("Should reject an unknown window policy", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync", CONNECTIONS_ENDPOINT, connection.ID),
				strings.NewReader("{\"window_policy\": \"yesterday\"}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("Should report a conflict when a sync is already running", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)
			fixture.syncs.StartErr = domain.SyncAlreadyRunningError

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusConflict))
		})

		It("Should report a conflict when the connection is inactive", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", false)
			fixture.syncs.StartErr = domain.ConnectionInactiveError

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusConflict))
		})

		It("Should report another user's connection as not found", func() {
			connection := fixture.createConnection("someone-else", "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Cancelling a sync", func() {

		It("Should accept the cancellation", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync/cancel", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusAccepted))
			Expect(fixture.syncs.CancelledConnections()).To(ContainElement(connection.ID))
		})

		It("Should report not found when no sync is running", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)
			fixture.syncs.CancelErr = domain.NotFoundError

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/sync/cancel", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})
})

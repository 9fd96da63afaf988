package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/middlewares"
	"github.com/clearco/calendar-connector/internal/oauth"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/gorilla/mux"
)

const (
	TEST_USER_ID = "user-1"

	CONNECTIONS_ENDPOINT = "/api/calendar-connector/v1/connections"
	AUTH_ENDPOINT        = CONNECTIONS_ENDPOINT + "/auth"
	CALLBACK_ENDPOINT    = CONNECTIONS_ENDPOINT + "/auth/callback"
)

func init() {
	logger.InitLogger()
}

type serverFixture struct {
	server      *ConnectionServer
	connections *MockConnectionStore
	meetings    *MockMeetingStore
	oauthFlow   *MockOAuthFlow
	signer      *oauth.StateSigner
	syncs       *MockSyncCoordinator
}

func buildServerFixture() *serverFixture {
	cfg := config.GetConfig()

	apiMux := mux.NewRouter()
	subRouter := apiMux.PathPrefix(cfg.UrlBasePath).Subrouter()

	signer, err := oauth.NewStateSigner(cfg)
	Expect(err).NotTo(HaveOccurred())

	fixture := &serverFixture{
		connections: NewMockConnectionStore(),
		meetings:    NewMockMeetingStore(),
		oauthFlow: &MockOAuthFlow{
			Tokens: oauth.TokenPair{
				AccessToken:  "provider-access-token",
				RefreshToken: "provider-refresh-token",
				Expiry:       time.Now().Add(time.Hour),
			},
			Identity: oauth.AccountIdentity{
				Email:             "me@example.com",
				ExternalAccountID: "google-account-1",
				DisplayName:       "Test User",
			},
		},
		signer: signer,
		syncs:  &MockSyncCoordinator{},
	}

	fixture.server = NewConnectionServer(
		fixture.connections,
		fixture.meetings,
		fixture.oauthFlow,
		fixture.signer,
		&MockTokenEncrypter{},
		fixture.syncs,
		subRouter,
		cfg)
	fixture.server.Routes()

	return fixture
}

func (f *serverFixture) createConnection(userID domain.UserID, accountID domain.ExternalAccountID, active bool) domain.Connection {
	connection, _, err := f.connections.Upsert(context.TODO(), domain.Connection{
		UserID:            userID,
		Title:             "Work calendar",
		AccountEmail:      "me@example.com",
		ExternalAccountID: accountID,
		Active:            active,
	})
	Expect(err).NotTo(HaveOccurred())
	return connection
}

func (f *serverFixture) doRequest(method, target string, body io.Reader, userID string) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, target, body)
	Expect(err).NotTo(HaveOccurred())

	if userID != "" {
		req.Header.Set(middlewares.UserIdHeader, userID)
	}

	rr := httptest.NewRecorder()
	f.server.router.ServeHTTP(rr, req)
	return rr
}

var _ = Describe("ConnectionServer", func() {

	var fixture *serverFixture

	BeforeEach(func() {
		fixture = buildServerFixture()
	})

	Describe("Listing connections", func() {

		Context("Without a user id header", func() {
			It("Should reject the request", func() {
				rr := fixture.doRequest("GET", CONNECTIONS_ENDPOINT, nil, "")
				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		})

		Context("With a user id header", func() {
			It("Should only return the caller's connections", func() {
				fixture.createConnection(TEST_USER_ID, "google-account-1", true)
				fixture.createConnection("someone-else", "google-account-2", true)

				rr := fixture.doRequest("GET", CONNECTIONS_ENDPOINT, nil, TEST_USER_ID)
				Expect(rr.Code).To(Equal(http.StatusOK))

				var response struct {
					Meta struct {
						Count int `json:"count"`
					} `json:"meta"`
					Data []connectionResponse `json:"data"`
				}
				Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
				Expect(response.Meta.Count).To(Equal(1))
				Expect(response.Data).To(HaveLen(1))
				Expect(response.Data[0].AccountEmail).To(Equal("me@example.com"))
			})

			It("Should reject an invalid limit", func() {
				rr := fixture.doRequest("GET", CONNECTIONS_ENDPOINT+"?limit=0", nil, TEST_USER_ID)
				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("Activating and deactivating a connection", func() {

		It("Should flip the active flag", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/active", CONNECTIONS_ENDPOINT, connection.ID),
				strings.NewReader("{\"active\": false}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusOK))

			stored, err := fixture.connections.FindByID(context.TODO(), connection.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Active).To(BeFalse())
		})

		It("Should reject a body without the active field", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/active", CONNECTIONS_ENDPOINT, connection.ID),
				strings.NewReader("{}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("Should report another user's connection as not found", func() {
			connection := fixture.createConnection("someone-else", "google-account-1", true)

			rr := fixture.doRequest("POST",
				fmt.Sprintf("%s/%s/active", CONNECTIONS_ENDPOINT, connection.ID),
				strings.NewReader("{\"active\": false}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Deleting a connection", func() {

		It("Should remove the connection and stop its sync", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			rr := fixture.doRequest("DELETE",
				fmt.Sprintf("%s/%s", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusNoContent))

			_, err := fixture.connections.FindByID(context.TODO(), connection.ID)
			Expect(err).To(Equal(domain.NotFoundError))

			Expect(fixture.syncs.CancelledConnections()).To(ContainElement(connection.ID))
		})

		It("Should report an unknown connection as not found", func() {
			rr := fixture.doRequest("DELETE", CONNECTIONS_ENDPOINT+"/no-such-connection", nil, TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Listing meetings", func() {

		It("Should return the connection's meetings with pagination metadata", func() {
			connection := fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			start := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
			for i := 0; i < 3; i++ {
				_, err := fixture.meetings.Upsert(context.TODO(), domain.Meeting{
					ID:              fmt.Sprintf("meeting-%d", i),
					ConnectionID:    connection.ID,
					ExternalEventID: fmt.Sprintf("evt-%d", i),
					Title:           "Gartner briefing",
					StartsAt:        start,
					EndsAt:          start.Add(time.Hour),
					AnalystID:       "analyst-1",
					Confidence:      1.0,
				})
				Expect(err).NotTo(HaveOccurred())
			}

			rr := fixture.doRequest("GET",
				fmt.Sprintf("%s/%s/meetings?offset=0&limit=2", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusOK))

			var response struct {
				Meta struct {
					Count int `json:"count"`
				} `json:"meta"`
				Links struct {
					Next string `json:"next"`
				} `json:"links"`
				Data []meetingResponse `json:"data"`
			}
			Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
			Expect(response.Meta.Count).To(Equal(3))
			Expect(response.Data).To(HaveLen(2))
			Expect(response.Links.Next).NotTo(BeEmpty())
		})

		It("Should report another user's connection as not found", func() {
			connection := fixture.createConnection("someone-else", "google-account-1", true)

			rr := fixture.doRequest("GET",
				fmt.Sprintf("%s/%s/meetings", CONNECTIONS_ENDPOINT, connection.ID),
				nil,
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})
})

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/oauth"
)

var _ = Describe("OAuth connect flow", func() {

	var fixture *serverFixture

	BeforeEach(func() {
		fixture = buildServerFixture()
	})

	signState := func(userID domain.UserID) string {
		state, err := fixture.signer.Sign(oauth.StatePayload{
			UserID: userID,
			Title:  "Work calendar",
			Nonce:  "nonce-1",
		})
		Expect(err).NotTo(HaveOccurred())
		return state
	}

	Describe("Starting the flow", func() {

		It("Should return an authorization url carrying a verifiable state", func() {
			rr := fixture.doRequest("POST", AUTH_ENDPOINT,
				strings.NewReader("{\"title\": \"Work calendar\", \"nonce\": \"nonce-1\"}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusOK))

			var response oauthStartResponse
			Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())

			authorizationURL, err := url.Parse(response.AuthorizationURL)
			Expect(err).NotTo(HaveOccurred())

			payload, err := fixture.signer.Verify(authorizationURL.Query().Get("state"))
			Expect(err).NotTo(HaveOccurred())
			Expect(payload.UserID).To(Equal(domain.UserID(TEST_USER_ID)))
			Expect(payload.Title).To(Equal("Work calendar"))
			Expect(payload.Nonce).To(Equal("nonce-1"))
		})

		It("Should require a nonce", func() {
			rr := fixture.doRequest("POST", AUTH_ENDPOINT,
				strings.NewReader("{\"title\": \"Work calendar\"}"),
				TEST_USER_ID)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("Should require authentication", func() {
			rr := fixture.doRequest("POST", AUTH_ENDPOINT,
				strings.NewReader("{\"nonce\": \"nonce-1\"}"),
				"")
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Completing the flow", func() {

		It("Should create a connection for the user named in the state", func() {
			state := signState(TEST_USER_ID)

			rr := fixture.doRequest("GET",
				fmt.Sprintf("%s?code=auth-code&state=%s", CALLBACK_ENDPOINT, url.QueryEscape(state)),
				nil, "")
			Expect(rr.Code).To(Equal(http.StatusCreated))

			var response connectionResponse
			Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
			Expect(response.Title).To(Equal("Work calendar"))
			Expect(response.AccountEmail).To(Equal("me@example.com"))
			Expect(response.Active).To(BeTrue())

			stored, err := fixture.connections.FindByID(context.TODO(), response.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.UserID).To(Equal(domain.UserID(TEST_USER_ID)))
			Expect(stored.EncryptedAccessToken).To(Equal("encrypted:provider-access-token"))
			Expect(stored.EncryptedRefreshToken).To(Equal("encrypted:provider-refresh-token"))
		})

		It("Should update the existing connection when the same account reconnects", func() {
			fixture.createConnection(TEST_USER_ID, "google-account-1", true)

			state := signState(TEST_USER_ID)

			rr := fixture.doRequest("GET",
				fmt.Sprintf("%s?code=auth-code&state=%s", CALLBACK_ENDPOINT, url.QueryEscape(state)),
				nil, "")
			Expect(rr.Code).To(Equal(http.StatusOK))

			connections, total, err := fixture.connections.ListForUser(context.TODO(), TEST_USER_ID, 0, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
			Expect(connections).To(HaveLen(1))
		})

		It("Should reject a callback without a state", func() {
			rr := fixture.doRequest("GET", CALLBACK_ENDPOINT+"?code=auth-code", nil, "")
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("Should reject a tampered state", func() {
			state := signState(TEST_USER_ID)

			rr := fixture.doRequest("GET",
				fmt.Sprintf("%s?code=auth-code&state=%s", CALLBACK_ENDPOINT, url.QueryEscape(state+"tampered")),
				nil, "")
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("Should reject a replayed state", func() {
			state := signState(TEST_USER_ID)
			escapedState := url.QueryEscape(state)

			rr := fixture.doRequest("GET",
				fmt.Sprintf("%s?code=auth-code&state=%s", CALLBACK_ENDPOINT, escapedState),
				nil, "")
			Expect(rr.Code).To(Equal(http.StatusCreated))

			rr = fixture.doRequest("GET",
				fmt.Sprintf("%s?code=auth-code&state=%s", CALLBACK_ENDPOINT, escapedState),
				nil, "")
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("Should surface a denied consent as an input error", func() {
			rr := fixture.doRequest("GET", CALLBACK_ENDPOINT+"?error=access_denied", nil, "")
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("Should surface a rejected code exchange as an input error", func() {
			fixture.oauthFlow.ExchangeErr = &domain.TokenExchangeError{Err: errors.New("invalid_grant")}

			state := signState(TEST_USER_ID)

			rr := fixture.doRequest("GET",
				fmt.Sprintf("%s?code=stale-code&state=%s", CALLBACK_ENDPOINT, url.QueryEscape(state)),
				nil, "")
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

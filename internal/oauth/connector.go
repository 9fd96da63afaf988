package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"
	"github.com/clearco/calendar-connector/internal/secrets"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var requestedScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// AccountIdentity is the provider's view of the authorized account, used to
// deduplicate connections and to default the connection title.
type AccountIdentity struct {
	Email             string
	ExternalAccountID domain.ExternalAccountID
	DisplayName       string
}

// TokenPair carries the result of a code exchange or a refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ConnectionTokenUpdater is the one slice of the connection store the
// connector needs: persisting refreshed credentials.
type ConnectionTokenUpdater interface {
	UpdateTokens(ctx context.Context, connectionID domain.ConnectionID, encryptedAccessToken string, encryptedRefreshToken string, expiry time.Time) error
}

// Connector drives the Google OAuth flows.  It is constructed once at
// process start from explicit configuration - there is no package-level
// client state.
type Connector struct {
	oauthConfig   *oauth2.Config
	vault         *secrets.TokenVault
	store         ConnectionTokenUpdater
	safetyMargin  time.Duration
	clientOptions []option.ClientOption
	nowFn         func() time.Time
}

func NewConnector(cfg *config.Config, vault *secrets.TokenVault, store ConnectionTokenUpdater) *Connector {
	return &Connector{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientId,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectUrl,
			Scopes:       requestedScopes,
			Endpoint:     google.Endpoint,
		},
		vault:        vault,
		store:        store,
		safetyMargin: cfg.TokenRefreshSafetyMargin,
		nowFn:        time.Now,
	}
}

// BuildAuthorizationURL constructs the provider consent URL.  The state has
// already been signed by the StateSigner.  Offline access is requested so a
// refresh token is issued, and consent is forced so reconnecting an existing
// account yields a fresh refresh token.
func (c *Connector) BuildAuthorizationURL(state string) string {
	return c.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode performs the one-shot authorization-code exchange.
func (c *Connector) ExchangeCode(ctx context.Context, code string) (TokenPair, error) {

	token, err := c.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return TokenPair{}, &domain.TokenExchangeError{Err: err}
	}

	return TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// FetchAccountIdentity resolves the authorized account's email, stable id
// and display name from the userinfo endpoint.
func (c *Connector) FetchAccountIdentity(ctx context.Context, accessToken string) (AccountIdentity, error) {

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})

	opts := append([]option.ClientOption{option.WithTokenSource(tokenSource)}, c.clientOptions...)

	service, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return AccountIdentity{}, fmt.Errorf("unable to create the userinfo service: %w", err)
	}

	userinfo, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return AccountIdentity{}, fmt.Errorf("unable to fetch the account identity: %w", err)
	}

	return AccountIdentity{
		Email:             userinfo.Email,
		ExternalAccountID: domain.ExternalAccountID(userinfo.Id),
		DisplayName:       userinfo.Name,
	}, nil
}

// EnsureValidToken returns a usable plaintext access token for the
// connection, refreshing and persisting it when the stored one is within the
// safety margin of its expiry.  A connection whose credentials cannot be
// refreshed fails with ReauthorizationRequiredError, which is terminal for
// the connection until the user re-authorizes.
func (c *Connector) EnsureValidToken(ctx context.Context, connection *domain.Connection) (string, error) {

	log := logger.Log.WithFields(logrus.Fields{"connection_id": connection.ID})

	accessToken, err := c.vault.Decrypt(connection.EncryptedAccessToken)
	if err != nil {
		return "", fmt.Errorf("unable to decrypt the stored access token: %w", err)
	}

	if c.nowFn().Before(connection.TokenExpiry.Add(-c.safetyMargin)) {
		return accessToken, nil
	}

	refreshToken, err := c.vault.Decrypt(connection.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("unable to decrypt the stored refresh token: %w", err)
	}

	if refreshToken == "" {
		return "", &domain.ReauthorizationRequiredError{
			ConnectionID: connection.ID,
			Err:          fmt.Errorf("no refresh token is stored"),
		}
	}

	log.Debug("Access token expired - refreshing")

	refreshed, err := c.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", &domain.ReauthorizationRequiredError{ConnectionID: connection.ID, Err: err}
	}

	encryptedAccessToken, err := c.vault.Encrypt(refreshed.AccessToken)
	if err != nil {
		return "", fmt.Errorf("unable to encrypt the refreshed access token: %w", err)
	}

	// Google only returns a refresh token on some refreshes; keep the old
	// one when the response omits it.
	newRefreshToken := refreshed.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	encryptedRefreshToken, err := c.vault.Encrypt(newRefreshToken)
	if err != nil {
		return "", fmt.Errorf("unable to encrypt the refreshed refresh token: %w", err)
	}

	err = c.store.UpdateTokens(ctx, connection.ID, encryptedAccessToken, encryptedRefreshToken, refreshed.Expiry)
	if err != nil {
		return "", fmt.Errorf("unable to persist the refreshed tokens: %w", err)
	}

	connection.EncryptedAccessToken = encryptedAccessToken
	connection.EncryptedRefreshToken = encryptedRefreshToken
	connection.TokenExpiry = refreshed.Expiry

	log.Debug("Access token refreshed")

	return refreshed.AccessToken, nil
}

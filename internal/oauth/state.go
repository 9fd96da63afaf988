package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// StatePayload is the caller context that round-trips through the provider's
// consent redirect.  The user identity in the callback comes exclusively
// from here - there is no fallback user for orphaned callbacks.
type StatePayload struct {
	UserID domain.UserID
	Title  string
	Nonce  string
}

type stateClaims struct {
	jwt.StandardClaims
	UserID string `json:"uid"`
	Title  string `json:"title,omitempty"`
	Nonce  string `json:"nonce,omitempty"`
}

// StateSigner issues and verifies the opaque OAuth state parameter.  States
// are HMAC-signed, short-lived, and single-use: a verified state's id is
// remembered until it would have expired anyway, and a second verification
// attempt is rejected as a replay.
type StateSigner struct {
	secret     []byte
	ttl        time.Duration
	usedStates *expirable.LRU[string, time.Time]
}

func NewStateSigner(cfg *config.Config) (*StateSigner, error) {

	secret := cfg.StateSigningSecret
	if secret == "" {
		if cfg.Environment != config.ENVIRONMENT_DEVELOPMENT {
			return nil, &domain.ConfigurationError{
				Setting: config.STATE_SIGNING_SECRET,
				Detail:  "oauth state signing secret is required outside development",
			}
		}

		logger.Log.Warn("No oauth state signing secret configured - using a development-only secret")
		secret = "calendar-connector-development-state-secret"
	}

	return &StateSigner{
		secret:     []byte(secret),
		ttl:        cfg.StateTTL,
		usedStates: expirable.NewLRU[string, time.Time](1024, nil, cfg.StateTTL),
	}, nil
}

func (ss *StateSigner) Sign(payload StatePayload) (string, error) {

	if payload.UserID == "" {
		return "", errors.New("a user id is required to build an oauth state")
	}

	now := time.Now()

	claims := stateClaims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ss.ttl).Unix(),
		},
		UserID: string(payload.UserID),
		Title:  payload.Title,
		Nonce:  payload.Nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(ss.secret)
}

// Verify checks the signature and expiry, consumes the state, and returns
// the payload.  A state can only be consumed once.
func (ss *StateSigner) Verify(state string) (StatePayload, error) {

	var claims stateClaims

	token, err := jwt.ParseWithClaims(state, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected state signing method: %v", token.Header["alg"])
		}
		return ss.secret, nil
	})
	if err != nil {
		return StatePayload{}, fmt.Errorf("invalid oauth state: %w", err)
	}

	if !token.Valid {
		return StatePayload{}, errors.New("invalid oauth state")
	}

	if claims.UserID == "" {
		return StatePayload{}, errors.New("oauth state does not identify a user")
	}

	if _, used := ss.usedStates.Get(claims.Id); used {
		return StatePayload{}, errors.New("oauth state has already been used")
	}
	ss.usedStates.Add(claims.Id, time.Now())

	return StatePayload{
		UserID: domain.UserID(claims.UserID),
		Title:  claims.Title,
		Nonce:  claims.Nonce,
	}, nil
}

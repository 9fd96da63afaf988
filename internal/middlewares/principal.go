package middlewares

import (
	"context"
	"net/http"

	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"
)

const (
	authErrorMessage = "Authentication failed"

	// UserIdHeader is set by the authenticating gateway in front of this
	// service.  The service never sees raw session credentials.
	UserIdHeader = "x-clearco-user-id"
)

// Principal identifies the internal user a request acts on behalf of.
type Principal interface {
	GetUserID() domain.UserID
}

type key int

var principalKey key

type gatewayPrincipal struct {
	userID domain.UserID
}

func (gp gatewayPrincipal) GetUserID() domain.UserID {
	return gp.userID
}

// GetPrincipal returns the principal the authentication middleware attached
// to the request context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(gatewayPrincipal)
	return p, ok
}

// AuthMiddleware allows the passage of parameters into the Authenticate middleware
type AuthMiddleware struct {
}

// Authenticate requires the gateway-provided user id header.  A request
// without an identity is rejected; there is no fallback user.
func (amw *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		userID := r.Header.Get(UserIdHeader)
		if userID == "" {
			logger.Log.Debug("Authentication failure: missing " + UserIdHeader + " header")
			http.Error(w, authErrorMessage, 401)
			return
		}

		principal := gatewayPrincipal{userID: domain.UserID(userID)}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

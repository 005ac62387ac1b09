package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/devhub-auth/internal/apperr"
	"github.com/iliyamo/devhub-auth/internal/session"
)

// AccessVerifier validates access tokens. *session.Manager satisfies it.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (session.Identity, error)
}

var errMissingBearer = &apperr.Error{Kind: apperr.KindUnauthorized, Code: "missing_token", Message: "missing bearer token"}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the caller into the request context: the user id under
// "user_id" and the full session.Identity under "identity". Tokens of
// deleted users are rejected even before they expire.
func JWTAuth(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return errMissingBearer
			}
			id, err := v.VerifyAccess(c.Request().Context(), strings.TrimSpace(raw))
			if err != nil {
				return err
			}
			c.Set("user_id", id.UserID)
			c.Set("identity", id)
			return next(c)
		}
	}
}

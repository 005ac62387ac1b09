package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/devhub-auth/internal/apperr"
)

// RequireSelf rejects the request with 403 unless the path parameter named
// param equals the authenticated user's id. It must run after JWTAuth.
func RequireSelf(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := userID(c)
			if uid == "guest" {
				return apperr.ErrInvalidToken
			}
			if c.Param(param) != uid {
				return apperr.ErrForbidden
			}
			return next(c)
		}
	}
}

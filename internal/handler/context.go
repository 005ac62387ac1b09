package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/devhub-auth/internal/apperr"
	"github.com/iliyamo/devhub-auth/internal/session"
)

// ctxIdentity returns the identity injected by the JWT middleware. Its
// absence means the route was registered without the middleware.
func ctxIdentity(c echo.Context) (session.Identity, error) {
	id, ok := c.Get("identity").(session.Identity)
	if !ok || id.UserID == "" {
		return session.Identity{}, apperr.ErrInvalidToken
	}
	return id, nil
}

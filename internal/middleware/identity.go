package middleware

import "github.com/labstack/echo/v4"

// userID returns the authenticated user id stored by JWTAuth, or "guest"
// when the request is anonymous.
func userID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "guest"
}

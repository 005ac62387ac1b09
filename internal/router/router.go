// Package router builds the Echo instance and registers every route.
package router

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/handler"
	"github.com/iliyamo/devhub-auth/internal/middleware"
)

// New returns an Echo instance with the global middleware, the validator
// and the JSON error handler installed. Requests are logged through log.
func New(log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(log)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Liveness)
	e.GET("/readyz", h.Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the session endpoints under /v1/auth. The
// credential endpoints sit behind the rate limiter; logout-all and verify
// require an access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwt, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh, limiter)
	g.POST("/logout", a.Logout)
	g.POST("/password/forgot", a.ForgotPassword, limiter)
	g.POST("/password/reset", a.ResetPassword, limiter)

	g.POST("/logout-all", a.LogoutAll, jwt)
	g.GET("/verify", a.Verify, jwt)
}

// RegisterUsers registers the profile endpoints. Reads are open to any
// authenticated user; mutations only to the profile's owner.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, jwt echo.MiddlewareFunc) {
	g := e.Group("/v1/users", jwt)
	g.GET("/me", u.Me)
	g.GET("/:id", u.Get)

	self := middleware.RequireSelf("id")
	g.PATCH("/:id", u.Update, self)
	g.DELETE("/:id", u.Delete, self)
}

package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Pinger is a dependency readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	log  zerolog.Logger
	deps map[string]Pinger
	// optional dependencies are reported but never fail readiness
	optional map[string]bool
}

// NewHealthHandler returns a handler with no dependencies. Ping failures are
// logged through log; the response only carries each dependency's status.
func NewHealthHandler(log zerolog.Logger) *HealthHandler {
	return &HealthHandler{log: log, deps: map[string]Pinger{}, optional: map[string]bool{}}
}

// Require registers a dependency whose failure makes the service unready.
func (h *HealthHandler) Require(name string, p Pinger) *HealthHandler {
	h.deps[name] = p
	return h
}

// Observe registers a dependency that is reported without affecting
// readiness, such as the cache.
func (h *HealthHandler) Observe(name string, p Pinger) *HealthHandler {
	h.deps[name] = p
	h.optional[name] = true
	return h
}

// Liveness: GET /healthz.
func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type readinessResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// Readiness: GET /readyz. Pings every registered dependency.
func (h *HealthHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.deps[name].Ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			deps[name] = "unhealthy"
			if !h.optional[name] {
				healthy = false
			}
			continue
		}
		deps[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	return c.JSON(code, readinessResponse{Status: status, Dependencies: deps})
}

package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether the datastore behind the service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthRoutes exposes liveness and readiness probes.
type HealthRoutes struct {
	pinger Pinger
}

func NewHealthRoutes(pinger Pinger) *HealthRoutes {
	return &HealthRoutes{pinger: pinger}
}

// RegisterRoutes registers health endpoints.
func (h *HealthRoutes) RegisterRoutes(s *echo.Echo) {
	s.GET("/healthz", h.handleLiveness)
	s.GET("/ready", h.handleReadiness)
}

func (h *HealthRoutes) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthRoutes) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

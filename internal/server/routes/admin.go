package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/greenquote/payhook/internal/app/ports"
	"github.com/greenquote/payhook/internal/pool"
)

// AdminRoutes exposes operational state: pool health and recent dead letters.
type AdminRoutes struct {
	pool        *pool.Pool
	deadLetters ports.DeadLetterStore
}

func NewAdminRoutes(p *pool.Pool, deadLetters ports.DeadLetterStore) *AdminRoutes {
	return &AdminRoutes{pool: p, deadLetters: deadLetters}
}

// RegisterRoutes registers admin endpoints.
func (a *AdminRoutes) RegisterRoutes(s *echo.Echo) {
	s.GET("/admin/pool", a.handlePoolStats)
	s.GET("/admin/dead-letters", a.handleDeadLetters)
}

func (a *AdminRoutes) handlePoolStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"stats":       a.pool.Stats(),
		"connections": a.pool.ConnectionDetails(),
	})
}

func (a *AdminRoutes) handleDeadLetters(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be 1-500"})
		}
		limit = parsed
	}

	letters, err := a.deadLetters.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "dead letter store unavailable"})
	}
	if letters == nil {
		letters = []ports.DeadLetter{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":        len(letters),
		"dead_letters": letters,
	})
}

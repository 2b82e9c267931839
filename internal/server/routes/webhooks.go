// Package routes registers the payhook HTTP endpoints.
package routes

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	webhookbilling "github.com/greenquote/payhook/internal/webhooks/billing"
)

// maxBodyBytes bounds a webhook payload. The provider caps event payloads
// well below this.
const maxBodyBytes = 1 << 20

// WebhookRoutes registers the provider webhook endpoints.
type WebhookRoutes struct {
	pipeline *webhookbilling.Pipeline
}

// NewWebhookRoutes constructs webhook routes around the processing pipeline.
func NewWebhookRoutes(pipeline *webhookbilling.Pipeline) *WebhookRoutes {
	return &WebhookRoutes{pipeline: pipeline}
}

// RegisterRoutes registers webhook endpoints.
func (w *WebhookRoutes) RegisterRoutes(s *echo.Echo) {
	s.POST("/webhooks/stripe", w.handleWebhook)
	s.POST("/webhooks/stripe/:tenant", w.handleWebhook)
}

func (w *WebhookRoutes) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	tenant := c.Param("tenant")
	signature := c.Request().Header.Get(webhookbilling.SignatureHeader)

	outcome := w.pipeline.Process(c.Request().Context(), tenant, signature, body)
	if outcome.HTTPStatus >= http.StatusInternalServerError {
		return c.JSON(outcome.HTTPStatus, map[string]string{"error": string(outcome.Status)})
	}
	if outcome.HTTPStatus >= http.StatusBadRequest {
		return c.JSON(outcome.HTTPStatus, map[string]string{
			"error":  string(outcome.Status),
			"reason": string(outcome.Reason),
		})
	}

	response := map[string]any{
		"received":         true,
		"eventId":          outcome.EventID,
		"status":           string(outcome.Status),
		"processingTimeMs": outcome.Duration.Milliseconds(),
	}
	if outcome.Handler != "" {
		response["handler"] = outcome.Handler
	}
	return c.JSON(http.StatusOK, response)
}

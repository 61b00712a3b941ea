package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calpay/internal/api"
	"calpay/internal/logger"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type QueueGauge interface {
	QueueLength(ctx context.Context) int64
}

type TestMailer interface {
	Send(ctx context.Context, to, name, subject, body string) error
}

// System groups the operational dependencies behind /health, /metrics and
// the admin test email.
type System struct {
	Checks map[string]Check
	Queue  QueueGauge
	Mailer TestMailer
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200 {object} api.HealthResponse
// @Failure      503 {object} api.HealthResponse
// @Router       /health [get]
func Health(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := api.HealthResponse{Status: "ok", Checks: map[string]string{}}
		code := http.StatusOK

		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				logger.Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}

		c.JSON(code, resp)
	}
}

type TestEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func TestEmail(mailer TestMailer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TestEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid request body"})
			return
		}
		if errs := api.ValidateStruct(req); len(errs) > 0 {
			api.RespondWithValidationErrors(c, errs)
			return
		}

		if err := mailer.Send(c.Request.Context(), req.Email, "Test User", "Test email from Cal Payments", "Email delivery is working."); err != nil {
			logger.Error("failed to queue test email", "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to queue email"})
			return
		}

		c.JSON(http.StatusOK, api.MessageResponse{Message: "Email queued successfully"})
	}
}

// Metrics refreshes the email queue gauge before each scrape.
func Metrics(queue QueueGauge) gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		if queue != nil {
			queue.QueueLength(c.Request.Context())
		}
		h.ServeHTTP(c.Writer, c.Request)
	}
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/services"
)

// HealthChecker reports engine and dependency health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) *services.HealthStatus
}

type HealthHandler struct {
	logger  *logrus.Logger
	checker HealthChecker
}

func NewHealthHandler(logger *logrus.Logger, checker HealthChecker) *HealthHandler {
	return &HealthHandler{logger: logger, checker: checker}
}

// Check always answers 200 while the engine can serve; a degraded store only
// shows up in the body.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.checker.CheckHealth(c.Request.Context())
	if status.Status != "healthy" {
		h.logger.WithField("services", status.Services).Warn("Health check degraded")
	}

	code := http.StatusOK
	if status.Status != "healthy" && status.Status != "degraded" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

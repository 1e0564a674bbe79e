package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/services"
)

type AnalyticsHandler struct {
	logger    *logrus.Logger
	analytics services.AnalyticsServiceInterface
}

func NewAnalyticsHandler(logger *logrus.Logger, analytics services.AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{
		logger:    logger,
		analytics: analytics,
	}
}

// GetTemplate handles GET /api/v1/templates/:templateId/analytics.
func (h *AnalyticsHandler) GetTemplate(c *gin.Context) {
	templateID := c.Param("templateId")

	snapshot, err := h.analytics.Snapshot(c.Request.Context(), templateID)
	if err != nil {
		if errors.Is(err, services.ErrTemplateNotFound) {
			respondError(c, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "No analytics recorded for template")
			return
		}
		h.logger.WithError(err).WithField("template_id", templateID).Error("Failed to compute template analytics")
		respondError(c, http.StatusInternalServerError, "ANALYTICS_FAILED", "Failed to compute template analytics")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

// List handles GET /api/v1/analytics.
func (h *AnalyticsHandler) List(c *gin.Context) {
	snapshots := h.analytics.AllSnapshots(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"data":  snapshots,
		"total": len(snapshots),
	})
}

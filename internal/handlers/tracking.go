package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/services"
	"github.com/temcen/drillsense/pkg/models"
)

// TrackingHandler accepts session usage and performance records.
type TrackingHandler struct {
	logger    *logrus.Logger
	analytics services.AnalyticsServiceInterface
	validator *validator.Validate
}

func NewTrackingHandler(logger *logrus.Logger, analytics services.AnalyticsServiceInterface) *TrackingHandler {
	return &TrackingHandler{
		logger:    logger,
		analytics: analytics,
		validator: validator.New(),
	}
}

// TrackUsage handles POST /api/v1/usage.
func (h *TrackingHandler) TrackUsage(c *gin.Context) {
	var event models.UsageEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
		return
	}
	if err := h.validator.Struct(&event); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
		return
	}

	stored, err := h.analytics.TrackUsage(c.Request.Context(), event)
	if err != nil {
		h.respondTrackingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":    stored,
		"message": "Usage event recorded successfully",
	})
}

// RecordPerformance handles POST /api/v1/performance.
func (h *TrackingHandler) RecordPerformance(c *gin.Context) {
	var record models.PerformanceRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
		return
	}
	if err := h.validator.Struct(&record); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
		return
	}

	stored, err := h.analytics.RecordPerformance(c.Request.Context(), record)
	if err != nil {
		h.respondTrackingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":    stored,
		"message": "Performance record stored successfully",
	})
}

func (h *TrackingHandler) respondTrackingError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrInvalidEvent) {
		respondError(c, http.StatusBadRequest, "INVALID_EVENT", err.Error())
		return
	}
	h.logger.WithError(err).Error("Failed to record tracking event")
	respondError(c, http.StatusInternalServerError, "TRACKING_FAILED", "Failed to record tracking event")
}

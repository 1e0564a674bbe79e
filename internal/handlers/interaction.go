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

type InteractionHandler struct {
	logger       *logrus.Logger
	interactions services.InteractionRecorderInterface
	validator    *validator.Validate
}

func NewInteractionHandler(logger *logrus.Logger, interactions services.InteractionRecorderInterface) *InteractionHandler {
	return &InteractionHandler{
		logger:       logger,
		interactions: interactions,
		validator:    validator.New(),
	}
}

// Record handles POST /api/v1/interactions.
func (h *InteractionHandler) Record(c *gin.Context) {
	var req models.InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to bind interaction request")
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
		return
	}

	if req.Kind == models.InteractionRated && req.Rating == nil {
		respondError(c, http.StatusBadRequest, "INVALID_RATING", "Rated interactions must include a rating between 0 and 10")
		return
	}

	score, err := h.interactions.RecordInteraction(c.Request.Context(), req.UserID, req.TemplateID, req.Kind, req.Rating)
	if err != nil {
		if errors.Is(err, services.ErrInvalidEvent) {
			respondError(c, http.StatusBadRequest, "INVALID_INTERACTION", err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to record interaction")
		respondError(c, http.StatusInternalServerError, "INTERACTION_FAILED", "Failed to record interaction")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": gin.H{
			"user_id":     req.UserID,
			"template_id": req.TemplateID,
			"score":       score,
		},
		"message": "Interaction recorded successfully",
	})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/middleware"
	"github.com/temcen/drillsense/internal/services"
	"github.com/temcen/drillsense/pkg/models"
)

type RecommendationHandler struct {
	orchestrator services.RecommendationOrchestratorInterface
	validator    *validator.Validate
	logger       *logrus.Logger
}

func NewRecommendationHandler(
	orchestrator services.RecommendationOrchestratorInterface,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		orchestrator: orchestrator,
		validator:    validator.New(),
		logger:       logger,
	}
}

// Generate handles POST /api/v1/recommendations.
func (h *RecommendationHandler) Generate(c *gin.Context) {
	var req models.RecommendationContext
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body format", err.Error())
		return
	}

	// Authenticated callers may omit the user id.
	if req.UserID == "" {
		req.UserID = middleware.GetUserFromContext(c)
	}

	if err := h.validator.Struct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
		return
	}

	result, err := h.orchestrator.GenerateRecommendations(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRequest) {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to generate recommendations")
		respondError(c, http.StatusInternalServerError, "RECOMMENDATION_GENERATION_FAILED", "Failed to generate recommendations")
		return
	}

	c.JSON(http.StatusOK, result)
}

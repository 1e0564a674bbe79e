package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/services"
	"github.com/temcen/drillsense/pkg/models"
)

const (
	defaultSimilarLimit = 10
	maxSimilarLimit     = 50
)

// TemplateHandler serves similarity lookups and catalog refreshes.
type TemplateHandler struct {
	logger     *logrus.Logger
	similarity services.SimilarityServiceInterface
	catalog    services.CatalogServiceInterface
	validator  *validator.Validate
}

func NewTemplateHandler(
	logger *logrus.Logger,
	similarity services.SimilarityServiceInterface,
	catalog services.CatalogServiceInterface,
) *TemplateHandler {
	return &TemplateHandler{
		logger:     logger,
		similarity: similarity,
		catalog:    catalog,
		validator:  validator.New(),
	}
}

// GetSimilar handles GET /api/v1/templates/:templateId/similar.
func (h *TemplateHandler) GetSimilar(c *gin.Context) {
	templateID := c.Param("templateId")

	limit := defaultSimilarLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= maxSimilarLimit {
			limit = parsed
		}
	}

	edges, err := h.similarity.SimilarTemplates(c.Request.Context(), templateID, limit)
	if err != nil {
		if errors.Is(err, services.ErrTemplateNotFound) {
			respondError(c, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "Template is not in the catalog")
			return
		}
		h.logger.WithError(err).WithField("template_id", templateID).Error("Failed to look up similar templates")
		respondError(c, http.StatusInternalServerError, "SIMILARITY_FAILED", "Failed to look up similar templates")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"template_id": templateID,
		"data":        edges,
	})
}

// ReplaceCatalog handles PUT /api/v1/catalog.
func (h *TemplateHandler) ReplaceCatalog(c *gin.Context) {
	var vectors []models.TemplateFeatureVector
	if err := c.ShouldBindJSON(&vectors); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
		return
	}

	for i := range vectors {
		if err := h.validator.Struct(&vectors[i]); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_FAILED",
				"Feature vector "+strconv.Itoa(i)+" failed validation", err.Error())
			return
		}
	}

	if err := h.catalog.ReplaceCatalog(c.Request.Context(), vectors); err != nil {
		h.logger.WithError(err).Error("Failed to replace catalog")
		respondError(c, http.StatusBadRequest, "CATALOG_REJECTED", "Catalog was rejected", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Catalog replaced successfully",
		"templates": len(vectors),
	})
}

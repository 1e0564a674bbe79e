package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Interaction    *InteractionHandler
	Recommendation *RecommendationHandler
	Tracking       *TrackingHandler
	Analytics      *AnalyticsHandler
	Template       *TemplateHandler
	Metrics        *MetricsHandler
}

func New(logger *logrus.Logger, svcs *services.Services, gatherer prometheus.Gatherer) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svcs.Health),
		Interaction:    NewInteractionHandler(logger, svcs.Interactions),
		Recommendation: NewRecommendationHandler(svcs.RecommendationOrchestrator, logger),
		Tracking:       NewTrackingHandler(logger, svcs.Analytics),
		Analytics:      NewAnalyticsHandler(logger, svcs.Analytics),
		Template:       NewTemplateHandler(logger, svcs.Similarity, svcs),
		Metrics:        NewMetricsHandler(gatherer),
	}
}

// respondError writes the standard error envelope.
func respondError(c *gin.Context, status int, code, message string, details ...string) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details[0]
	}
	c.JSON(status, gin.H{"error": body})
}

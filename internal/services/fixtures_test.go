package services

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/pkg/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// testEngine is the in-memory engine without persistence, rebuilding
// similarity synchronously on read.
type testEngine struct {
	cfg          *config.Config
	metrics      *MetricsCollector
	normalizer   *TextNormalizer
	catalog      *FeatureCatalog
	interactions *InteractionStore
	similarity   *SimilarityEngine
	analytics    *AnalyticsEngine
	filter       *HardFilter
	algorithms   *RecommendationAlgorithmsService
	orchestrator *RecommendationOrchestrator
}

func newTestEngine(t *testing.T, templates ...models.TemplateFeatureVector) *testEngine {
	t.Helper()

	cfg := config.Default()
	cfg.Similarity.Background = false
	logger := newTestLogger()

	e := &testEngine{cfg: cfg}
	e.metrics = NewMetricsCollector(prometheus.NewRegistry())
	e.normalizer = NewTextNormalizer()
	e.catalog = NewFeatureCatalog(logger)
	e.interactions = NewInteractionStore(logger, e.metrics)
	e.similarity = NewSimilarityEngine(
		e.catalog, e.interactions, e.normalizer, &cfg.Similarity, cfg.Recommendation.MaxCatalogSize, logger, e.metrics,
	)
	e.analytics = NewAnalyticsEngine(&cfg.Analytics, nil, logger, e.metrics)
	e.filter = NewHardFilter(e.normalizer, cfg.Recommendation.TimeTolerance, cfg.Recommendation.MaxLevelGap)
	e.algorithms = NewRecommendationAlgorithmsService(
		e.catalog, e.interactions, e.similarity, e.analytics, e.filter, e.normalizer, &cfg.Recommendation, logger,
	)
	e.orchestrator = NewRecommendationOrchestrator(
		e.algorithms, e.catalog, e.interactions, e.analytics,
		NewExplanationService(e.analytics, logger), e.filter, &cfg.Recommendation, e.metrics, logger,
	)

	if len(templates) > 0 {
		e.catalog.Replace(templates)
	}
	return e
}

func newTemplate(id string, kind models.WorkoutType, level models.SkillLevel, duration int, equipment ...string) models.TemplateFeatureVector {
	return models.TemplateFeatureVector{
		TemplateID: id,
		Name:       id,
		Type:       kind,
		Difficulty: level,
		Duration:   duration,
		Equipment:  equipment,
	}
}

func rating(v float64) *models.Rating010 {
	r := models.Rating010(v)
	return &r
}

package services

import (
	"context"
	"time"

	"github.com/temcen/drillsense/pkg/models"
)

// AnalyticsPublisher pushes computed snapshots to an external read store for dashboards.
type AnalyticsPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot *models.TemplateAnalyticsSnapshot, ttl time.Duration) error
}

// RecommendationOrchestratorInterface defines the interface for recommendation orchestration
type RecommendationOrchestratorInterface interface {
	GenerateRecommendations(ctx context.Context, reqCtx *models.RecommendationContext) (*models.RecommendationResult, error)
}

// InteractionRecorderInterface defines the interface for behavioural interaction tracking
type InteractionRecorderInterface interface {
	RecordInteraction(ctx context.Context, userID, templateID string, kind models.InteractionKind, rating *models.Rating010) (float64, error)
}

// AnalyticsServiceInterface defines the interface for usage tracking and template analytics
type AnalyticsServiceInterface interface {
	TrackUsage(ctx context.Context, event models.UsageEvent) (models.UsageEvent, error)
	RecordPerformance(ctx context.Context, record models.PerformanceRecord) (models.PerformanceRecord, error)
	Snapshot(ctx context.Context, templateID string) (*models.TemplateAnalyticsSnapshot, error)
	AllSnapshots(ctx context.Context) []models.TemplateAnalyticsSnapshot
}

// SimilarityServiceInterface defines the interface for similarity lookups
type SimilarityServiceInterface interface {
	SimilarTemplates(ctx context.Context, templateID string, limit int) ([]models.SimilarityEdge, error)
}

// CatalogServiceInterface defines the interface for feature catalog refreshes
type CatalogServiceInterface interface {
	ReplaceCatalog(ctx context.Context, vectors []models.TemplateFeatureVector) error
}

var (
	_ RecommendationOrchestratorInterface = (*RecommendationOrchestrator)(nil)
	_ InteractionRecorderInterface        = (*InteractionStore)(nil)
	_ AnalyticsServiceInterface           = (*AnalyticsEngine)(nil)
	_ SimilarityServiceInterface          = (*SimilarityEngine)(nil)
	_ CatalogServiceInterface             = (*Services)(nil)
)

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/internal/database"
	"github.com/temcen/drillsense/internal/validation"
	"github.com/temcen/drillsense/pkg/models"
)

type Services struct {
	Auth                       *AuthService
	Health                     *HealthService
	Metrics                    *MetricsCollector
	Schemas                    *validation.SchemaValidator
	Normalizer                 *TextNormalizer
	Catalog                    *FeatureCatalog
	Interactions               *InteractionStore
	Similarity                 *SimilarityEngine
	Analytics                  *AnalyticsEngine
	HardFilter                 *HardFilter
	RecommendationAlgorithms   *RecommendationAlgorithmsService
	ExplanationService         *ExplanationService
	RecommendationOrchestrator *RecommendationOrchestrator
	Tracking                   *TrackingIngestService
	Snapshots                  *SnapshotWriter

	gateway PersistenceGateway
	closers []func() error
	config  *config.Config
	logger  *logrus.Logger
}

// New builds the engine. db may be nil when no external store is configured.
func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, reg prometheus.Registerer) (*Services, error) {
	schemas, err := validation.NewDefaultSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	metrics := NewMetricsCollector(reg)
	normalizer := NewTextNormalizer()
	catalog := NewFeatureCatalog(logger)
	interactions := NewInteractionStore(logger, metrics)
	similarity := NewSimilarityEngine(
		catalog, interactions, normalizer, &cfg.Similarity, cfg.Recommendation.MaxCatalogSize, logger, metrics,
	)

	var publisher AnalyticsPublisher
	if cfg.Analytics.PublishToRedis && db != nil && db.Redis != nil {
		publisher = database.NewRedisAnalyticsPublisher(db.Redis)
	}
	analytics := NewAnalyticsEngine(&cfg.Analytics, publisher, logger, metrics)

	hardFilter := NewHardFilter(normalizer, cfg.Recommendation.TimeTolerance, cfg.Recommendation.MaxLevelGap)
	algorithms := NewRecommendationAlgorithmsService(
		catalog, interactions, similarity, analytics, hardFilter, normalizer, &cfg.Recommendation, logger,
	)
	explanations := NewExplanationService(analytics, logger)
	orchestrator := NewRecommendationOrchestrator(
		algorithms, catalog, interactions, analytics, explanations, hardFilter, &cfg.Recommendation, metrics, logger,
	)
	tracking := NewTrackingIngestService(interactions, analytics, schemas, metrics, logger)

	s := &Services{
		Auth:                       NewAuthService(&cfg.Auth, logger),
		Metrics:                    metrics,
		Schemas:                    schemas,
		Normalizer:                 normalizer,
		Catalog:                    catalog,
		Interactions:               interactions,
		Similarity:                 similarity,
		Analytics:                  analytics,
		HardFilter:                 hardFilter,
		RecommendationAlgorithms:   algorithms,
		ExplanationService:         explanations,
		RecommendationOrchestrator: orchestrator,
		Tracking:                   tracking,
		config:                     cfg,
		logger:                     logger,
	}

	codec := database.NewSnapshotCodec(schemas)
	gateway, err := s.newGateway(db, codec)
	if err != nil {
		s.close()
		return nil, err
	}
	s.gateway = gateway

	var mirrors []SnapshotMirror
	if cfg.Persistence.MirrorToNeo4j {
		if db != nil && db.Neo4j != nil {
			mirrors = append(mirrors, database.NewNeo4jSimilarityMirror(db.Neo4j, logger))
		} else {
			logger.Warn("Neo4j mirror requested but no Neo4j connection is configured")
		}
	}
	s.Snapshots = NewSnapshotWriter(gateway, s.buildSnapshot, &cfg.Persistence, logger, metrics, mirrors...)

	interactions.Subscribe(func(_, _ string) {
		s.Snapshots.Schedule()
	})
	analytics.Subscribe(func(_ string) {
		s.Snapshots.Schedule()
	})

	var deps DependencyPinger
	if db != nil {
		deps = db
	}
	s.Health = NewHealthService(deps, catalog, similarity, s.Snapshots, reg, logger)

	return s, nil
}

func (s *Services) newGateway(db *database.Database, codec *database.SnapshotCodec) (PersistenceGateway, error) {
	driver := s.config.Persistence.Driver
	switch driver {
	case "", "memory":
		return database.NewMemoryGateway(codec), nil

	case "badger":
		gw, err := database.OpenBadgerGateway(s.config.Persistence.BadgerPath, codec)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, gw.Close)
		return gw, nil

	case "postgres":
		if db == nil || db.PG == nil {
			return nil, fmt.Errorf("persistence driver %q requires database.url", driver)
		}
		gw := database.NewPostgresGateway(db.PG, codec)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gw.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return gw, nil

	case "redis":
		if db == nil || db.Redis == nil {
			return nil, fmt.Errorf("persistence driver %q requires redis.url", driver)
		}
		return database.NewRedisGateway(db.Redis, s.config.Persistence.RedisKey, codec), nil

	default:
		return nil, fmt.Errorf("unknown persistence driver %q", driver)
	}
}

// buildSnapshot captures the current engine state for the writer.
func (s *Services) buildSnapshot() *models.EngineSnapshot {
	templates, users := s.Similarity.Matrices()
	usage, performance := s.Analytics.Events()

	return &models.EngineSnapshot{
		SchemaVersion:      models.SnapshotSchemaVersion,
		SavedAt:            time.Now().UTC(),
		Interactions:       s.Interactions.Matrix(),
		TemplateSimilarity: templates,
		UserSimilarity:     users,
		Features:           s.Catalog.All(),
		UsageEvents:        usage,
		PerformanceRecords: performance,
	}
}

// ReplaceCatalog installs a full catalog refresh and invalidates derived state.
func (s *Services) ReplaceCatalog(ctx context.Context, vectors []models.TemplateFeatureVector) error {
	if vectors == nil {
		vectors = []models.TemplateFeatureVector{}
	}
	if err := s.Schemas.ValidateCatalog(vectors).Err(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	if limit := s.config.Recommendation.MaxCatalogSize; limit > 0 && len(vectors) > limit {
		s.logger.WithFields(logrus.Fields{
			"templates": len(vectors),
			"max":       limit,
		}).Warn("Catalog exceeds configured size; similarity covers the first templates by id")
	}

	s.Catalog.Replace(vectors)
	s.Similarity.InvalidateAll()
	s.Metrics.SetCatalogSize(s.Catalog.Len())
	s.Snapshots.Schedule()

	// The catalog is installed either way; a failed eager rebuild is retried
	// by the next reader.
	if !s.config.Similarity.Background {
		if err := s.Similarity.Rebuild(ctx); err != nil {
			s.logger.WithError(err).Warn("Similarity rebuild after catalog refresh failed")
		}
	}
	return nil
}

// ImportCatalogFile loads a JSON catalog from disk.
func (s *Services) ImportCatalogFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	if err := s.Schemas.ValidateCatalog(data).Err(); err != nil {
		return fmt.Errorf("invalid catalog file %s: %w", path, err)
	}

	var vectors []models.TemplateFeatureVector
	if err := json.Unmarshal(data, &vectors); err != nil {
		return fmt.Errorf("failed to decode catalog file: %w", err)
	}
	return s.ReplaceCatalog(ctx, vectors)
}

// Hydrate restores the last persisted snapshot. A missing or unreadable
// snapshot leaves the engine cold; it is never fatal.
func (s *Services) Hydrate(ctx context.Context) error {
	snapshot, err := s.gateway.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		s.logger.Info("No persisted snapshot found, starting cold")
		return nil
	}
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load persisted snapshot, starting cold")
		return nil
	}

	s.Catalog.Replace(snapshot.Features)
	s.Interactions.Restore(snapshot.Interactions, snapshot.SavedAt)
	s.Similarity.Restore(snapshot.TemplateSimilarity, snapshot.UserSimilarity)
	s.Analytics.Restore(snapshot.UsageEvents, snapshot.PerformanceRecords)

	s.Metrics.SetCatalogSize(s.Catalog.Len())

	s.logger.WithFields(logrus.Fields{
		"saved_at":  snapshot.SavedAt,
		"templates": len(snapshot.Features),
		"users":     len(snapshot.Interactions),
	}).Info("Engine state restored from snapshot")
	return nil
}

// Start launches the background workers.
func (s *Services) Start() {
	s.Similarity.Start()
	s.Analytics.Start()
	s.Snapshots.Start()
	s.Health.Start()
}

// Shutdown stops the workers and flushes dirty state.
func (s *Services) Shutdown(ctx context.Context) error {
	s.Health.Stop()
	s.Similarity.Stop()
	s.Analytics.Stop(ctx)
	err := s.Snapshots.Stop(ctx)
	if closeErr := s.close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

func (s *Services) close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

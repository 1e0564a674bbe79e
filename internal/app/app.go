package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/internal/database"
	"github.com/temcen/drillsense/internal/handlers"
	"github.com/temcen/drillsense/internal/messaging"
	"github.com/temcen/drillsense/internal/middleware"
	"github.com/temcen/drillsense/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	registry *prometheus.Registry
	services *services.Services
	handlers *handlers.Handlers
	consumer *messaging.TrackingConsumer
	limiter  *middleware.RateLimiter
	router   *gin.Engine

	cancel   context.CancelFunc
	workers  sync.WaitGroup
	shutdown sync.Once
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config:   cfg,
		logger:   setupLogger(cfg),
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	svcs, err := services.New(cfg, app.logger, db, app.registry)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	// Warm start from the last snapshot, then apply an explicit catalog file on top.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svcs.Hydrate(ctx); err != nil {
		app.logger.WithError(err).Warn("Hydration failed")
	}
	if cfg.Catalog.Path != "" {
		if err := svcs.ImportCatalogFile(ctx, cfg.Catalog.Path); err != nil {
			// Releases the gateway (e.g. the badger directory lock) before the connections.
			if sErr := svcs.Shutdown(ctx); sErr != nil {
				app.logger.WithError(sErr).Warn("Failed to shut down services after catalog import failure")
			}
			_ = db.Close()
			return nil, fmt.Errorf("failed to import catalog: %w", err)
		}
	}

	if cfg.Kafka.Enabled {
		app.consumer = messaging.NewTrackingConsumer(&cfg.Kafka, svcs.Tracking, func(err error) bool {
			return errors.Is(err, services.ErrInvalidEvent)
		}, app.logger)
		svcs.Health.AddDetail("tracking_consumer", app.consumer.GetMetrics)
	}

	app.handlers = handlers.New(app.logger, svcs, app.registry)
	app.limiter = middleware.NewRateLimiter(cfg.Auth.RateLimit.RequestsPerSecond, cfg.Auth.RateLimit.Burst)

	// Setup router
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches the background workers and, when enabled, the event consumer.
func (a *App) Start() {
	a.services.Start()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.limiter.Cleanup(time.Hour)
			case <-ctx.Done():
				return
			}
		}
	}()

	if a.consumer != nil {
		a.workers.Add(1)
		go func() {
			defer a.workers.Done()
			if err := a.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("Tracking consumer stopped")
			}
		}()
		a.logger.WithField("topic", a.config.Kafka.Topics.TrackingEvents).Info("Tracking consumer started")
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.shutdown.Do(func() {
		a.logger.Info("Shutting down application...")

		if a.cancel != nil {
			a.cancel()
		}
		a.workers.Wait()

		var errs []error
		if a.consumer != nil {
			if cErr := a.consumer.Close(); cErr != nil {
				errs = append(errs, cErr)
			}
		}
		if sErr := a.services.Shutdown(ctx); sErr != nil {
			a.logger.WithError(sErr).Error("Final snapshot flush failed")
			errs = append(errs, sErr)
		}
		if dErr := a.db.Close(); dErr != nil {
			a.logger.WithError(dErr).Error("Error closing database connections")
			errs = append(errs, dErr)
		}
		err = errors.Join(errs...)
	})
	return err
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(&a.config.Security.CORS))

	// Health check endpoints (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, a.handlers.Metrics.Serve)
	}

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		api.Use(middleware.RateLimit(a.limiter, a.logger))

		api.POST("/recommendations", a.handlers.Recommendation.Generate)
		api.POST("/interactions", a.handlers.Interaction.Record)

		// Session tracking
		api.POST("/usage", a.handlers.Tracking.TrackUsage)
		api.POST("/performance", a.handlers.Tracking.RecordPerformance)

		api.GET("/analytics", a.handlers.Analytics.List)

		templates := api.Group("/templates")
		{
			templates.GET("/:templateId/analytics", a.handlers.Analytics.GetTemplate)
			templates.GET("/:templateId/similar", a.handlers.Template.GetSimilar)
		}

		api.PUT("/catalog", a.handlers.Template.ReplaceCatalog)
	}

	a.router = router
}

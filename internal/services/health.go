package services

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// DependencyPinger checks the external connections by name.
type DependencyPinger interface {
	Ping(ctx context.Context) map[string]error
}

type HealthService struct {
	deps       DependencyPinger
	catalog    *FeatureCatalog
	similarity *SimilarityEngine
	snapshots  *SnapshotWriter
	logger     *logrus.Logger

	detailsMu sync.RWMutex
	details   map[string]func() map[string]interface{}

	// Prometheus metrics
	healthCheckStatus *prometheus.GaugeVec
	lastHealthCheck   *prometheus.GaugeVec
	systemMetrics     *prometheus.GaugeVec

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Latency     time.Duration          `json:"latency,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// NewHealthService wires the health checks. deps and snapshots may be nil.
func NewHealthService(
	deps DependencyPinger,
	catalog *FeatureCatalog,
	similarity *SimilarityEngine,
	snapshots *SnapshotWriter,
	reg prometheus.Registerer,
	logger *logrus.Logger,
) *HealthService {
	factory := promauto.With(reg)

	return &HealthService{
		deps:       deps,
		catalog:    catalog,
		similarity: similarity,
		snapshots:  snapshots,
		logger:     logger,
		details:    make(map[string]func() map[string]interface{}),
		healthCheckStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drillsense_health_check_status",
			Help: "Health check status (1 = healthy, 0 = unhealthy)",
		}, []string{"service"}),
		lastHealthCheck: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drillsense_health_check_timestamp",
			Help: "Timestamp of last health check",
		}, []string{"service"}),
		systemMetrics: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drillsense_system_info",
			Help: "System information metrics",
		}, []string{"metric_type"}),
		stopChan: make(chan struct{}),
	}
}

// AddDetail attaches a named detail source to every health report.
func (s *HealthService) AddDetail(name string, source func() map[string]interface{}) {
	s.detailsMu.Lock()
	defer s.detailsMu.Unlock()
	s.details[name] = source
}

// Start begins periodic system metric collection.
func (s *HealthService) Start() {
	s.wg.Add(1)
	go s.collectSystemMetrics()
}

func (s *HealthService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// CheckHealth reports engine state and external dependencies. The engine
// serves from memory, so dependency failures only degrade the status.
func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
		Details:   make(map[string]interface{}),
	}

	if s.deps != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		for name, err := range s.deps.Ping(ctx) {
			if err != nil {
				status.Services[name] = "unhealthy"
				status.NonCritical = append(status.NonCritical, name)
				s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", name)
				s.UpdateHealthMetrics(name, false)
			} else {
				status.Services[name] = "healthy"
				s.UpdateHealthMetrics(name, true)
			}
		}
	}

	if s.snapshots != nil {
		state := s.snapshots.BreakerState()
		status.Details["persistence_breaker"] = state
		if state != "closed" {
			status.Services["persistence"] = "unhealthy"
			status.NonCritical = append(status.NonCritical, "persistence")
			s.UpdateHealthMetrics("persistence", false)
		} else {
			status.Services["persistence"] = "healthy"
			s.UpdateHealthMetrics("persistence", true)
		}
	}

	status.Details["catalog_size"] = s.catalog.Len()
	status.Details["catalog_version"] = s.catalog.Version()
	if s.similarity != nil {
		status.Details["similarity"] = s.similarity.Stats()
	}
	s.detailsMu.RLock()
	for name, source := range s.details {
		status.Details[name] = source()
	}
	s.detailsMu.RUnlock()

	if len(status.NonCritical) == 0 {
		status.Status = "healthy"
	} else {
		status.Status = "degraded"
	}
	status.Latency = time.Since(start)

	return status
}

// collectSystemMetrics collects system-level metrics
func (s *HealthService) collectSystemMetrics() {
	defer s.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var memStats runtime.MemStats

	for {
		select {
		case <-ticker.C:
		case <-s.stopChan:
			return
		}

		runtime.ReadMemStats(&memStats)

		s.systemMetrics.WithLabelValues("memory_alloc_bytes").Set(float64(memStats.Alloc))
		s.systemMetrics.WithLabelValues("memory_sys_bytes").Set(float64(memStats.Sys))
		s.systemMetrics.WithLabelValues("goroutines_count").Set(float64(runtime.NumGoroutine()))
		s.systemMetrics.WithLabelValues("gc_runs_total").Set(float64(memStats.NumGC))
	}
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}

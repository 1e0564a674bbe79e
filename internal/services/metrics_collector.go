package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector owns the engine's Prometheus instruments. A nil collector
// is valid and records nothing.
type MetricsCollector struct {
	recommendationRequests *prometheus.CounterVec
	recommendationLatency  prometheus.Histogram
	candidateCount         *prometheus.HistogramVec
	interactionsRecorded   *prometheus.CounterVec
	eventsIngested         *prometheus.CounterVec
	similarityRebuild      *prometheus.HistogramVec
	snapshotSaves          *prometheus.CounterVec
	analyticsFailures      prometheus.Counter
	analyticsPublishes     *prometheus.CounterVec
	catalogSize            prometheus.Gauge
	trackedUsers           prometheus.Gauge
}

// NewMetricsCollector registers the instruments with reg. Tests pass a fresh
// prometheus.NewRegistry(); the server passes prometheus.DefaultRegisterer.
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)

	return &MetricsCollector{
		recommendationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drillsense_recommendation_requests_total",
			Help: "Total number of recommendation requests by algorithm tag",
		}, []string{"algorithm"}),

		recommendationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "drillsense_recommendation_latency_seconds",
			Help:    "Recommendation request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		candidateCount: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drillsense_candidates_generated",
			Help:    "Candidates produced per generator per request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"source"}),

		interactionsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drillsense_interactions_total",
			Help: "Interactions recorded by kind",
		}, []string{"kind"}),

		eventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drillsense_events_ingested_total",
			Help: "Tracking events ingested by type and outcome",
		}, []string{"event_type", "outcome"}),

		similarityRebuild: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drillsense_similarity_rebuild_seconds",
			Help:    "Similarity matrix rebuild duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"matrix"}),

		snapshotSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drillsense_snapshot_saves_total",
			Help: "Persistence snapshot saves by outcome",
		}, []string{"outcome"}),

		analyticsFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "drillsense_analytics_failures_total",
			Help: "Template analytics computations that failed",
		}),

		analyticsPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drillsense_analytics_publishes_total",
			Help: "Analytics snapshot publications by outcome",
		}, []string{"outcome"}),

		catalogSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drillsense_catalog_templates",
			Help: "Templates in the feature catalog",
		}),

		trackedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drillsense_tracked_users",
			Help: "Users with at least one recorded interaction",
		}),
	}
}

func (mc *MetricsCollector) RecordRecommendation(algorithm string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.recommendationRequests.WithLabelValues(algorithm).Inc()
	mc.recommendationLatency.Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordCandidates(source string, n int) {
	if mc == nil {
		return
	}
	mc.candidateCount.WithLabelValues(source).Observe(float64(n))
}

func (mc *MetricsCollector) RecordInteraction(kind string) {
	if mc == nil {
		return
	}
	mc.interactionsRecorded.WithLabelValues(kind).Inc()
}

func (mc *MetricsCollector) RecordIngest(eventType, outcome string) {
	if mc == nil {
		return
	}
	mc.eventsIngested.WithLabelValues(eventType, outcome).Inc()
}

func (mc *MetricsCollector) ObserveRebuild(matrix string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.similarityRebuild.WithLabelValues(matrix).Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordSnapshotSave(outcome string) {
	if mc == nil {
		return
	}
	mc.snapshotSaves.WithLabelValues(outcome).Inc()
}

func (mc *MetricsCollector) RecordAnalyticsFailure() {
	if mc == nil {
		return
	}
	mc.analyticsFailures.Inc()
}

func (mc *MetricsCollector) RecordAnalyticsPublish(outcome string) {
	if mc == nil {
		return
	}
	mc.analyticsPublishes.WithLabelValues(outcome).Inc()
}

func (mc *MetricsCollector) SetCatalogSize(n int) {
	if mc == nil {
		return
	}
	mc.catalogSize.Set(float64(n))
}

func (mc *MetricsCollector) SetTrackedUsers(n int) {
	if mc == nil {
		return
	}
	mc.trackedUsers.Set(float64(n))
}

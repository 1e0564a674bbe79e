package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Similarity     SimilarityConfig     `mapstructure:"similarity"`
	Analytics      AnalyticsConfig      `mapstructure:"analytics"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Persistence    PersistenceConfig    `mapstructure:"persistence"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	JWTSecret string          `mapstructure:"jwt_secret"`
	Issuer    string          `mapstructure:"issuer"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// SourceWeights are the per-generator multipliers used when merging candidates.
type SourceWeights struct {
	Collaborative float64 `mapstructure:"collaborative"`
	ContentBased  float64 `mapstructure:"content_based"`
	Popularity    float64 `mapstructure:"popularity"`
	Contextual    float64 `mapstructure:"contextual"`
}

type RecommendationConfig struct {
	Weights                SourceWeights `mapstructure:"weights"`
	NeighborCount          int           `mapstructure:"neighbor_count"`
	LikedThreshold         float64       `mapstructure:"liked_threshold"`
	ContentSimilarityFloor float64       `mapstructure:"content_similarity_floor"`
	PopularityConfidence   float64       `mapstructure:"popularity_confidence"`
	ContextualConfidence   float64       `mapstructure:"contextual_confidence"`
	DefaultLimit           int           `mapstructure:"default_limit"`
	AlternativeCount       int           `mapstructure:"alternative_count"`
	TimeTolerance          float64       `mapstructure:"time_tolerance"`
	MaxLevelGap            int           `mapstructure:"max_level_gap"`
	RecencyWindow          time.Duration `mapstructure:"recency_window"`
	RecencyBoost           float64       `mapstructure:"recency_boost"`
	MaxCatalogSize         int           `mapstructure:"max_catalog_size"`
}

type SimilarityConfig struct {
	UserThreshold      float64       `mapstructure:"user_threshold"`
	MinCommonTemplates int           `mapstructure:"min_common_templates"`
	Background         bool          `mapstructure:"background"`
	RebuildInterval    time.Duration `mapstructure:"rebuild_interval"`
}

type AnalyticsConfig struct {
	SnapshotTTL      time.Duration `mapstructure:"snapshot_ttl"`
	TrendThreshold   float64       `mapstructure:"trend_threshold"`
	TrendWindowsDays []int         `mapstructure:"trend_windows_days"`
	PublishToRedis   bool          `mapstructure:"publish_to_redis"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type PersistenceConfig struct {
	Driver        string               `mapstructure:"driver"` // memory, badger, postgres, redis
	FlushInterval time.Duration        `mapstructure:"flush_interval"`
	SaveTimeout   time.Duration        `mapstructure:"save_timeout"`
	BadgerPath    string               `mapstructure:"badger_path"`
	RedisKey      string               `mapstructure:"redis_key"`
	MirrorToNeo4j bool                 `mapstructure:"mirror_to_neo4j"`
	Breaker       CircuitBreakerConfig `mapstructure:"breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		TrackingEvents    string `mapstructure:"tracking_events"`
		TrackingEventsDLQ string `mapstructure:"tracking_events_dlq"`
	} `mapstructure:"topics"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MaxRetries    int    `mapstructure:"max_retries"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	// Local .env is optional; values land in the environment before viper reads it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.rate_limit.requests_per_second", 50.0)
	v.SetDefault("auth.rate_limit.burst", 100)

	// Recommendation defaults
	v.SetDefault("recommendation.weights.collaborative", 0.40)
	v.SetDefault("recommendation.weights.content_based", 0.35)
	v.SetDefault("recommendation.weights.popularity", 0.15)
	v.SetDefault("recommendation.weights.contextual", 0.10)
	v.SetDefault("recommendation.neighbor_count", 10)
	v.SetDefault("recommendation.liked_threshold", 0.5)
	v.SetDefault("recommendation.content_similarity_floor", 0.3)
	v.SetDefault("recommendation.popularity_confidence", 0.7)
	v.SetDefault("recommendation.contextual_confidence", 0.6)
	v.SetDefault("recommendation.default_limit", 10)
	v.SetDefault("recommendation.alternative_count", 5)
	v.SetDefault("recommendation.time_tolerance", 1.2)
	v.SetDefault("recommendation.max_level_gap", 1)
	v.SetDefault("recommendation.recency_window", "168h")
	v.SetDefault("recommendation.recency_boost", 1.1)
	v.SetDefault("recommendation.max_catalog_size", 2000)

	// Similarity defaults
	v.SetDefault("similarity.user_threshold", 0.1)
	v.SetDefault("similarity.min_common_templates", 2)
	v.SetDefault("similarity.background", true)
	v.SetDefault("similarity.rebuild_interval", "1m")

	// Analytics defaults
	v.SetDefault("analytics.snapshot_ttl", "30m")
	v.SetDefault("analytics.trend_threshold", 5.0)
	v.SetDefault("analytics.trend_windows_days", []int{7, 30, 90})
	v.SetDefault("analytics.publish_to_redis", false)

	// Persistence defaults
	v.SetDefault("persistence.driver", "memory")
	v.SetDefault("persistence.flush_interval", "30s")
	v.SetDefault("persistence.save_timeout", "10s")
	v.SetDefault("persistence.badger_path", "./data/snapshots")
	v.SetDefault("persistence.redis_key", "drillsense:snapshot")
	v.SetDefault("persistence.mirror_to_neo4j", false)
	v.SetDefault("persistence.breaker.failure_threshold", 5)
	v.SetDefault("persistence.breaker.open_timeout", "1m")

	// Database defaults
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.tracking_events", "training-tracking-events")
	v.SetDefault("kafka.topics.tracking_events_dlq", "training-tracking-events-dlq")
	v.SetDefault("kafka.consumer_group", "drillsense-ingest")
	v.SetDefault("kafka.max_retries", 3)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}

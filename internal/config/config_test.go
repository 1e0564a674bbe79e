package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Persistence.Driver)
	assert.Equal(t, 30*time.Second, cfg.Persistence.FlushInterval)
	assert.Equal(t, uint32(5), cfg.Persistence.Breaker.FailureThreshold)
	assert.Equal(t, 168*time.Hour, cfg.Recommendation.RecencyWindow)
	assert.Equal(t, 30*time.Minute, cfg.Analytics.SnapshotTTL)
	assert.Equal(t, []int{7, 30, 90}, cfg.Analytics.TrendWindowsDays)
	assert.True(t, cfg.Similarity.Background)
	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "training-tracking-events", cfg.Kafka.Topics.TrackingEvents)

	w := cfg.Recommendation.Weights
	assert.InDelta(t, 1.0, w.Collaborative+w.ContentBased+w.Popularity+w.Contextual, 1e-9)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PERSISTENCE_DRIVER", "badger")
	t.Setenv("SIMILARITY_BACKGROUND", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Persistence.Driver)
	assert.False(t, cfg.Similarity.Background)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/pkg/models"
)

type MockAnalyticsPublisher struct {
	mock.Mock
}

func (m *MockAnalyticsPublisher) PublishSnapshot(ctx context.Context, snapshot *models.TemplateAnalyticsSnapshot, ttl time.Duration) error {
	args := m.Called(ctx, snapshot, ttl)
	return args.Error(0)
}

func usage(templateID, userID, sessionID string, mods ...models.ModificationKind) models.UsageEvent {
	e := models.UsageEvent{
		TemplateID:  templateID,
		UserID:      userID,
		SessionID:   sessionID,
		SessionType: models.SessionPractice,
	}
	for _, m := range mods {
		e.Modifications = append(e.Modifications, models.Modification{Kind: m})
	}
	return e
}

func TestAnalyticsEngine_EffectivenessScore(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Two coaches each run the template twice; every recorded session goes well.
	for _, ev := range []models.UsageEvent{
		usage("t1", "u1", "s1"),
		usage("t1", "u1", "s2"),
		usage("t1", "u2", "s3"),
		usage("t1", "u2", "s4"),
	} {
		_, err := e.analytics.TrackUsage(ctx, ev)
		require.NoError(t, err)
	}
	for _, session := range []string{"s1", "s3"} {
		_, err := e.analytics.RecordPerformance(ctx, models.PerformanceRecord{
			TemplateID:     "t1",
			SessionID:      session,
			CompletionRate: 0.9,
			Satisfaction:   rating(9),
		})
		require.NoError(t, err)
	}

	snap, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)

	assert.Greater(t, snap.EffectivenessScore, 80.0)
	assert.InDelta(t, 90.5, snap.EffectivenessScore, 1e-6)
	assert.Equal(t, 4, snap.TotalUsage)
	assert.Equal(t, 2, snap.UniqueUsers)
	assert.InDelta(t, 0.9, float64(snap.CompletionRate), 1e-9)
	assert.InDelta(t, 9.0, float64(snap.AverageRating), 1e-9)
	assert.Equal(t, models.SentimentPositive, snap.PlayerFeedback.Sentiment)
	assert.Equal(t, models.Score01(0), snap.ModificationFrequency)
	assert.NotNil(t, snap.LastUsed)

	score, ok := e.analytics.EffectivenessScore(ctx, "t1")
	assert.True(t, ok)
	assert.InDelta(t, 90.5, score, 1e-6)

	// Recomputing from the unchanged logs after expiry yields the same score.
	later := time.Now().Add(31 * time.Minute)
	e.analytics.now = func() time.Time { return later }
	again, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, later, again.LastUpdated)
	assert.Equal(t, snap.EffectivenessScore, again.EffectivenessScore)
}

func TestEffectivenessScore_Components(t *testing.T) {
	tests := []struct {
		name     string
		usage    []models.UsageEvent
		perf     []models.PerformanceRecord
		modRate  float64
		expected float64
	}{
		{
			// Neutral satisfaction and progress, no repeat users.
			name:     "no performance data",
			usage:    []models.UsageEvent{usage("t1", "u1", "s1")},
			expected: 100 * (0.5*0.20 + 0.20 + 0.15 + 0.5*0.10),
		},
		{
			name:  "injuries and modifications",
			usage: []models.UsageEvent{usage("t1", "u1", "s1"), usage("t1", "u1", "s2")},
			perf: []models.PerformanceRecord{
				{TemplateID: "t1", SessionID: "s1", CompletionRate: 0.5, InjuryIncidents: 1},
				{TemplateID: "t1", SessionID: "s2", CompletionRate: 0.5},
			},
			modRate:  0.5,
			expected: 100 * (0.5*0.25 + 0.5*0.20 + 0.5*0.20 + 0.5*0.15 + 1*0.10 + 0.5*0.10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := effectivenessScore(tt.usage, tt.perf, playerFeedback(tt.perf), tt.modRate)
			assert.InDelta(t, tt.expected, score, 1e-6)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 100.0)
		})
	}
}

func TestAnalyticsEngine_SnapshotCache(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	e.analytics.now = func() time.Time { return now }

	_, err := e.analytics.TrackUsage(ctx, usage("t1", "u1", "s1"))
	require.NoError(t, err)

	first, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, now, first.LastUpdated)

	// Within the TTL the memoized snapshot is served.
	now = now.Add(10 * time.Minute)
	cached, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first.LastUpdated, cached.LastUpdated)

	// A new event for the template invalidates immediately.
	_, err = e.analytics.TrackUsage(ctx, usage("t1", "u2", "s2"))
	require.NoError(t, err)
	fresh, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalUsage)
	assert.Equal(t, now, fresh.LastUpdated)

	// And so does expiry.
	now = now.Add(31 * time.Minute)
	expired, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, now, expired.LastUpdated)
}

func TestAnalyticsEngine_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.analytics.Snapshot(ctx, "never-used")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, ok := e.analytics.EffectivenessScore(ctx, "never-used")
	assert.False(t, ok)

	_, err = e.analytics.TrackUsage(ctx, models.UsageEvent{TemplateID: "t1", UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = e.analytics.RecordPerformance(ctx, models.PerformanceRecord{
		TemplateID: "t1", SessionID: "s1", InjuryIncidents: -1,
	})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	assert.Empty(t, e.analytics.TrackedTemplates())
}

func TestAnalyticsEngine_AllSnapshotsAndPublish(t *testing.T) {
	cfg := config.Default()
	cfg.Analytics.PublishToRedis = true

	publisher := new(MockAnalyticsPublisher)
	publisher.On("PublishSnapshot", mock.Anything, mock.Anything, cfg.Analytics.SnapshotTTL).Return(nil)

	analytics := NewAnalyticsEngine(&cfg.Analytics, publisher, newTestLogger(), nil)
	ctx := context.Background()

	var notified []string
	analytics.Subscribe(func(id string) { notified = append(notified, id) })

	_, err := analytics.TrackUsage(ctx, usage("t2", "u1", "s1"))
	require.NoError(t, err)
	_, err = analytics.RecordPerformance(ctx, models.PerformanceRecord{TemplateID: "t1", SessionID: "s2", CompletionRate: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t1"}, notified)

	snaps := analytics.AllSnapshots(ctx)
	require.Len(t, snaps, 2)
	assert.Equal(t, "t1", snaps[0].TemplateID)
	assert.Equal(t, "t2", snaps[1].TemplateID)
	assert.Equal(t, 0, snaps[0].TotalUsage)
	assert.Equal(t, 100.0, snaps[1].PopularityScore)

	// Publication happens off the request path; Stop flushes what is pending.
	publisher.AssertNumberOfCalls(t, "PublishSnapshot", 0)
	analytics.Stop(ctx)
	publisher.AssertNumberOfCalls(t, "PublishSnapshot", 2)
}

func TestAnalyticsEngine_StaleSnapshotIsNotCached(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	e.analytics.now = func() time.Time { return now }

	_, err := e.analytics.TrackUsage(ctx, usage("t1", "u1", "s1"))
	require.NoError(t, err)

	// A reader computes from one event while a second event lands.
	stale, gen, err := e.analytics.compute("t1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, stale.TotalUsage)

	_, err = e.analytics.TrackUsage(ctx, usage("t1", "u2", "s2"))
	require.NoError(t, err)

	assert.False(t, e.analytics.storeSnapshot("t1", *stale, gen, now))

	snap, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalUsage)
}

func TestAnalyticsEngine_RestoreOutdatesInflightSnapshots(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	_, err := e.analytics.TrackUsage(ctx, usage("t1", "u1", "s1"))
	require.NoError(t, err)

	stale, gen, err := e.analytics.compute("t1", now)
	require.NoError(t, err)

	// Same per-template sequence, different logs.
	e.analytics.Restore([]models.UsageEvent{usage("t1", "u9", "s9"), usage("t1", "u8", "s8")}, nil)

	assert.False(t, e.analytics.storeSnapshot("t1", *stale, gen, now))
	snap, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalUsage)
}

func TestAnalyticsEngine_ConcurrentSnapshotsSeeEveryEvent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	const events = 50

	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = e.analytics.TrackUsage(ctx, usage("t1", fmt.Sprintf("u%d", i), fmt.Sprintf("s%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = e.analytics.Snapshot(ctx, "t1")
		}()
	}
	wg.Wait()

	snap, err := e.analytics.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, events, snap.TotalUsage)
}

func TestSnapshotOutbox(t *testing.T) {
	ttl := 30 * time.Minute

	t.Run("keeps the latest snapshot per template", func(t *testing.T) {
		publisher := new(MockAnalyticsPublisher)
		publisher.On("PublishSnapshot", mock.Anything, mock.MatchedBy(func(s *models.TemplateAnalyticsSnapshot) bool {
			return s.TemplateID == "t1"
		}), ttl).Return(nil).Once()
		publisher.On("PublishSnapshot", mock.Anything, mock.MatchedBy(func(s *models.TemplateAnalyticsSnapshot) bool {
			return s.TemplateID == "t2"
		}), ttl).Return(nil).Once()

		metrics := NewMetricsCollector(prometheus.NewRegistry())
		outbox := newSnapshotOutbox(publisher, ttl, newTestLogger(), metrics)

		outbox.Enqueue(models.TemplateAnalyticsSnapshot{TemplateID: "t1", TotalUsage: 1})
		outbox.Enqueue(models.TemplateAnalyticsSnapshot{TemplateID: "t1", TotalUsage: 3})
		outbox.Enqueue(models.TemplateAnalyticsSnapshot{TemplateID: "t2", TotalUsage: 1})
		assert.Equal(t, 2, outbox.Pending())

		outbox.Stop(context.Background())

		assert.Equal(t, 0, outbox.Pending())
		publisher.AssertExpectations(t)
		published := publisher.Calls[0].Arguments.Get(1).(*models.TemplateAnalyticsSnapshot)
		assert.Equal(t, 3, published.TotalUsage)
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.analyticsPublishes.WithLabelValues("success")))
	})

	t.Run("failures are counted and dropped", func(t *testing.T) {
		publisher := new(MockAnalyticsPublisher)
		publisher.On("PublishSnapshot", mock.Anything, mock.Anything, ttl).Return(errors.New("redis down"))

		metrics := NewMetricsCollector(prometheus.NewRegistry())
		outbox := newSnapshotOutbox(publisher, ttl, newTestLogger(), metrics)

		outbox.Enqueue(models.TemplateAnalyticsSnapshot{TemplateID: "t1"})
		outbox.Stop(context.Background())

		assert.Equal(t, 0, outbox.Pending())
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.analyticsPublishes.WithLabelValues("error")))
	})

	t.Run("worker publishes in the background", func(t *testing.T) {
		publisher := new(MockAnalyticsPublisher)
		publisher.On("PublishSnapshot", mock.Anything, mock.Anything, ttl).Return(nil)

		metrics := NewMetricsCollector(prometheus.NewRegistry())
		outbox := newSnapshotOutbox(publisher, ttl, newTestLogger(), metrics)
		outbox.Start()
		defer outbox.Stop(context.Background())

		outbox.Enqueue(models.TemplateAnalyticsSnapshot{TemplateID: "t1"})
		assert.Eventually(t, func() bool {
			return testutil.ToFloat64(metrics.analyticsPublishes.WithLabelValues("success")) == 1
		}, time.Second, 5*time.Millisecond)
	})
}

func TestAnalyticsEngine_RecentlyUsedAndRestore(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	old := usage("t1", "u1", "s1")
	old.Timestamp = now.Add(-10 * 24 * time.Hour)
	_, err := e.analytics.TrackUsage(ctx, old)
	require.NoError(t, err)

	assert.False(t, e.analytics.RecentlyUsed("t1", now.Add(-7*24*time.Hour)))
	assert.True(t, e.analytics.RecentlyUsed("t1", now.Add(-11*24*time.Hour)))

	usageLog, perfLog := e.analytics.Events()
	require.Len(t, usageLog, 1)
	assert.Empty(t, perfLog)

	restored := NewAnalyticsEngine(&e.cfg.Analytics, nil, newTestLogger(), nil)
	restored.Restore(usageLog, perfLog)
	snap, err := restored.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalUsage)
}

func TestPopularityScore(t *testing.T) {
	assert.Equal(t, 0.0, popularityScore("a", map[string]int{"a": 5}))
	assert.Equal(t, 50.0, popularityScore("a", map[string]int{"a": 3, "b": 3}))

	counts := map[string]int{"a": 1, "b": 3, "c": 2}
	assert.InDelta(t, 0.0, popularityScore("a", counts), 1e-9)
	assert.InDelta(t, 100.0, popularityScore("b", counts), 1e-9)
	assert.InDelta(t, 50.0, popularityScore("c", counts), 1e-9)
}

func TestModificationAnalytics(t *testing.T) {
	events := []models.UsageEvent{
		usage("t1", "u1", "s1", models.ModDurationChange, models.ModRestChange),
		usage("t1", "u1", "s2", models.ModDurationChange),
		usage("t1", "u2", "s3"),
		usage("t1", "u2", "s4"),
	}

	assert.InDelta(t, 0.5, modificationRate(events, nil), 1e-9)

	patterns := commonModifications(events, nil)
	require.Len(t, patterns, 2)
	assert.Equal(t, models.ModDurationChange, patterns[0].Kind)
	assert.Equal(t, 2, patterns[0].Count)
	assert.InDelta(t, 0.5, float64(patterns[0].Frequency), 1e-9)
	assert.Equal(t, models.ModRestChange, patterns[1].Kind)

	assert.InDelta(t, 1.0, repeatUsageRate(events), 1e-9)
	assert.Equal(t, 2, uniqueUsers(events))
}

func TestPlayerFeedbackAndProgress(t *testing.T) {
	perf := []models.PerformanceRecord{
		{
			SessionID:    "s1",
			Satisfaction: rating(2),
			PlayerMetrics: []models.PlayerMetrics{
				{PlayerID: "p1", CompletionRate: 0.4, Satisfaction: rating(8)},
				{PlayerID: "p2", CompletionRate: 0.6, Satisfaction: rating(6)},
			},
		},
		{
			SessionID:    "s2",
			Satisfaction: rating(3),
			PlayerMetrics: []models.PlayerMetrics{
				{PlayerID: "p1", CompletionRate: 0.8},
				{PlayerID: "p2", CompletionRate: 0.8},
			},
		},
	}

	fb := playerFeedback(perf)
	assert.Equal(t, 3, fb.Responses, "session rating used only when no player rated")
	assert.InDelta(t, 17.0/3.0, float64(fb.AverageSatisfaction), 1e-9)
	assert.InDelta(t, 1.0/3.0, fb.PositiveRatio, 1e-9)
	assert.InDelta(t, 1.0/3.0, fb.NegativeRatio, 1e-9)
	assert.Equal(t, models.SentimentNeutral, fb.Sentiment)

	// p1 +0.4, p2 +0.2: mean delta 0.3 re-centred around 0.5.
	assert.InDelta(t, 0.65, playerProgress(perf), 1e-9)
	assert.Equal(t, neutralProgress, playerProgress(perf[:1]))
}

func TestPerformanceTrends(t *testing.T) {
	now := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	perf := []models.PerformanceRecord{
		{SessionID: "s1", CompletionRate: 0.5, Timestamp: now.Add(-72 * time.Hour)},
		{SessionID: "s2", CompletionRate: 0.5, Timestamp: now.Add(-48 * time.Hour)},
		{SessionID: "s3", CompletionRate: 0.9, Timestamp: now.Add(-24 * time.Hour)},
		{SessionID: "s4", CompletionRate: 0.9, Timestamp: now.Add(-time.Hour)},
	}

	trends := performanceTrends(perf, now, []int{7}, 5)

	byMetric := make(map[string]models.PerformanceTrend)
	for _, tr := range trends {
		byMetric[tr.Metric] = tr
	}

	completion, ok := byMetric["completion_rate"]
	require.True(t, ok)
	assert.Equal(t, 7, completion.WindowDays)
	assert.InDelta(t, 80.0, completion.ChangePercent, 1e-9)
	assert.Equal(t, models.TrendImproving, completion.Direction)
	assert.Equal(t, 4, completion.SampleSize)

	injuries := byMetric["injury_incidents"]
	assert.Equal(t, 0.0, injuries.ChangePercent, "zero baseline reports no change")
	assert.Equal(t, models.TrendStable, injuries.Direction)

	_, ok = byMetric["satisfaction"]
	assert.False(t, ok, "metrics missing from either half are omitted")

	assert.Empty(t, performanceTrends(perf[:1], now, []int{7}, 5))
	assert.Len(t, performanceTrends(perf, now, nil, 5), 3*3, "default windows")
}

func TestTrendDirection(t *testing.T) {
	assert.Equal(t, models.TrendImproving, trendDirection(10, 5, true))
	assert.Equal(t, models.TrendDeclining, trendDirection(-10, 5, true))
	assert.Equal(t, models.TrendStable, trendDirection(4, 5, true))
	assert.Equal(t, models.TrendImproving, trendDirection(-10, 5, false))
	assert.Equal(t, models.TrendDeclining, trendDirection(10, 5, false))
}

func TestSeasonalUsage(t *testing.T) {
	at := func(m time.Month) models.UsageEvent {
		e := usage("t1", "u1", "s")
		e.Timestamp = time.Date(2026, m, 15, 0, 0, 0, 0, time.UTC)
		return e
	}

	su := seasonalUsage([]models.UsageEvent{at(time.January), at(time.January), at(time.August), at(time.May)})
	assert.InDelta(t, 0.5, su.Ratios[models.SeasonInseason], 1e-9)
	assert.InDelta(t, 0.25, su.Ratios[models.SeasonOffseason], 1e-9)
	assert.InDelta(t, 0.25, su.Ratios[models.SeasonPlayoffs], 1e-9)
	assert.Equal(t, 0.0, su.Ratios[models.SeasonPreseason])
	assert.Equal(t, "January", su.PeakMonth)
	assert.Equal(t, "May", su.LowestMonth)

	empty := seasonalUsage(nil)
	assert.Len(t, empty.Ratios, 4)
	assert.Empty(t, empty.PeakMonth)
}

func TestSeasonalInfluence(t *testing.T) {
	assert.Equal(t, 0.9, SeasonalInfluence(models.WorkoutStrength, models.SeasonOffseason))
	assert.Equal(t, 0.9, SeasonalInfluence(models.WorkoutRecovery, models.SeasonPlayoffs))
	assert.Equal(t, 0.5, SeasonalInfluence(models.WorkoutType("YOGA"), models.SeasonOffseason))
}

package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/pkg/models"
)

// Effectiveness component weights.
const (
	completionWeight   = 0.25
	satisfactionWeight = 0.20
	safetyWeight       = 0.20
	stabilityWeight    = 0.15
	repeatUsageWeight  = 0.10
	progressWeight     = 0.10

	neutralSatisfaction  = 5.0
	neutralProgress      = 0.5
	positiveSatisfaction = 7.0
	negativeSatisfaction = 4.0
)

type cachedSnapshot struct {
	snapshot  models.TemplateAnalyticsSnapshot
	expiresAt time.Time
}

// logGeneration identifies the state of one template's logs. seq moves on
// every appended event for the template, epoch on every Restore.
type logGeneration struct {
	epoch uint64
	seq   uint64
}

// AnalyticsEngine keeps the append-only usage and performance logs and derives
// per-template analytics snapshots from them. Snapshots are memoized until
// they expire or a new event for the same template arrives. With a publisher
// and publication enabled, fresh snapshots are handed over in the background.
type AnalyticsEngine struct {
	mu          sync.RWMutex
	usage       map[string][]models.UsageEvent
	performance map[string][]models.PerformanceRecord
	cache       map[string]cachedSnapshot
	generation  map[string]uint64
	epoch       uint64

	config    *config.AnalyticsConfig
	outbox    *snapshotOutbox
	listeners []func(templateID string)
	now       func() time.Time
	logger    *logrus.Logger
	metrics   *MetricsCollector
}

func NewAnalyticsEngine(
	cfg *config.AnalyticsConfig,
	publisher AnalyticsPublisher,
	logger *logrus.Logger,
	metrics *MetricsCollector,
) *AnalyticsEngine {
	a := &AnalyticsEngine{
		usage:       make(map[string][]models.UsageEvent),
		performance: make(map[string][]models.PerformanceRecord),
		cache:       make(map[string]cachedSnapshot),
		generation:  make(map[string]uint64),
		config:      cfg,
		now:         time.Now,
		logger:      logger,
		metrics:     metrics,
	}
	if publisher != nil && cfg.PublishToRedis {
		a.outbox = newSnapshotOutbox(publisher, a.ttl(), logger, metrics)
	}
	return a
}

// Start launches the background publisher, if any.
func (a *AnalyticsEngine) Start() {
	if a.outbox != nil {
		a.outbox.Start()
	}
}

// Stop halts the background publisher after publishing what is pending.
func (a *AnalyticsEngine) Stop(ctx context.Context) {
	if a.outbox != nil {
		a.outbox.Stop(ctx)
	}
}

// Subscribe registers fn to run after every appended event.
func (a *AnalyticsEngine) Subscribe(fn func(templateID string)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// TrackUsage appends a usage event and invalidates the template's snapshot.
func (a *AnalyticsEngine) TrackUsage(ctx context.Context, event models.UsageEvent) (models.UsageEvent, error) {
	if event.TemplateID == "" || event.UserID == "" || event.SessionID == "" {
		return event, fmt.Errorf("%w: usage event requires template, user and session ids", ErrInvalidEvent)
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}

	a.mu.Lock()
	a.usage[event.TemplateID] = append(a.usage[event.TemplateID], event)
	a.invalidateLocked(event.TemplateID)
	listeners := a.listeners
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(event.TemplateID)
	}

	a.logger.WithFields(logrus.Fields{
		"template_id": event.TemplateID,
		"user_id":     event.UserID,
		"session_id":  event.SessionID,
	}).Debug("Tracked template usage")

	return event, nil
}

// RecordPerformance appends a performance record and invalidates the template's snapshot.
func (a *AnalyticsEngine) RecordPerformance(ctx context.Context, record models.PerformanceRecord) (models.PerformanceRecord, error) {
	if record.TemplateID == "" || record.SessionID == "" {
		return record, fmt.Errorf("%w: performance record requires template and session ids", ErrInvalidEvent)
	}
	if record.InjuryIncidents < 0 {
		return record, fmt.Errorf("%w: injury incidents cannot be negative", ErrInvalidEvent)
	}
	if record.EventID == uuid.Nil {
		record.EventID = uuid.New()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = a.now()
	}

	a.mu.Lock()
	a.performance[record.TemplateID] = append(a.performance[record.TemplateID], record)
	a.invalidateLocked(record.TemplateID)
	listeners := a.listeners
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(record.TemplateID)
	}

	a.logger.WithFields(logrus.Fields{
		"template_id": record.TemplateID,
		"session_id":  record.SessionID,
	}).Debug("Recorded template performance")

	return record, nil
}

// Snapshot returns the analytics for one template, from cache when still valid.
func (a *AnalyticsEngine) Snapshot(ctx context.Context, templateID string) (*models.TemplateAnalyticsSnapshot, error) {
	now := a.now()

	a.mu.RLock()
	cached, ok := a.cache[templateID]
	a.mu.RUnlock()
	if ok && now.Before(cached.expiresAt) {
		snap := cached.snapshot
		return &snap, nil
	}

	snap, gen, err := a.compute(templateID, now)
	if err != nil {
		return nil, err
	}

	if a.storeSnapshot(templateID, *snap, gen, now) && a.outbox != nil {
		a.outbox.Enqueue(*snap)
	}
	return snap, nil
}

// storeSnapshot caches snap only if no event for the template and no Restore
// happened since its logs were read. A stale result is still returned to its
// caller but never outlives the request.
func (a *AnalyticsEngine) storeSnapshot(templateID string, snap models.TemplateAnalyticsSnapshot, gen logGeneration, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generationLocked(templateID) != gen {
		return false
	}
	a.cache[templateID] = cachedSnapshot{snapshot: snap, expiresAt: now.Add(a.ttl())}
	return true
}

// invalidateLocked must be called with a.mu held for writing.
func (a *AnalyticsEngine) invalidateLocked(templateID string) {
	a.generation[templateID]++
	delete(a.cache, templateID)
}

func (a *AnalyticsEngine) generationLocked(templateID string) logGeneration {
	return logGeneration{epoch: a.epoch, seq: a.generation[templateID]}
}

// AllSnapshots computes every tracked template independently; a failure for
// one template is logged and skipped.
func (a *AnalyticsEngine) AllSnapshots(ctx context.Context) []models.TemplateAnalyticsSnapshot {
	ids := a.TrackedTemplates()
	out := make([]models.TemplateAnalyticsSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := a.Snapshot(ctx, id)
		if err != nil {
			a.metrics.RecordAnalyticsFailure()
			a.logger.WithError(err).WithField("template_id", id).Warn("Failed to compute template analytics")
			continue
		}
		out = append(out, *snap)
	}
	return out
}

// EffectivenessScore returns the cached-or-computed effectiveness and whether
// the template has any recorded events.
func (a *AnalyticsEngine) EffectivenessScore(ctx context.Context, templateID string) (float64, bool) {
	snap, err := a.Snapshot(ctx, templateID)
	if err != nil {
		return 0, false
	}
	return snap.EffectivenessScore, true
}

// RecentlyUsed reports whether templateID had a usage event after since.
func (a *AnalyticsEngine) RecentlyUsed(templateID string, since time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	events := a.usage[templateID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Timestamp.After(since) {
			return true
		}
	}
	return false
}

// TrackedTemplates lists templates with at least one event, sorted.
func (a *AnalyticsEngine) TrackedTemplates() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := make(map[string]struct{}, len(a.usage)+len(a.performance))
	for id := range a.usage {
		seen[id] = struct{}{}
	}
	for id := range a.performance {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Events copies both logs for persistence.
func (a *AnalyticsEngine) Events() ([]models.UsageEvent, []models.PerformanceRecord) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	usage := make([]models.UsageEvent, 0)
	for _, events := range a.usage {
		usage = append(usage, events...)
	}
	perf := make([]models.PerformanceRecord, 0)
	for _, records := range a.performance {
		perf = append(perf, records...)
	}
	sort.SliceStable(usage, func(i, j int) bool { return usage[i].Timestamp.Before(usage[j].Timestamp) })
	sort.SliceStable(perf, func(i, j int) bool { return perf[i].Timestamp.Before(perf[j].Timestamp) })
	return usage, perf
}

// Restore replaces both logs with persisted events and drops every cached snapshot.
func (a *AnalyticsEngine) Restore(usage []models.UsageEvent, perf []models.PerformanceRecord) {
	byUsage := make(map[string][]models.UsageEvent)
	for _, e := range usage {
		byUsage[e.TemplateID] = append(byUsage[e.TemplateID], e)
	}
	byPerf := make(map[string][]models.PerformanceRecord)
	for _, r := range perf {
		byPerf[r.TemplateID] = append(byPerf[r.TemplateID], r)
	}

	a.mu.Lock()
	a.usage = byUsage
	a.performance = byPerf
	a.cache = make(map[string]cachedSnapshot)
	a.epoch++
	a.mu.Unlock()
}

func (a *AnalyticsEngine) ttl() time.Duration {
	if a.config.SnapshotTTL > 0 {
		return a.config.SnapshotTTL
	}
	return 30 * time.Minute
}

// compute builds a snapshot from the current logs and reports the generation
// it read. Panics are converted to errors so one malformed template cannot
// break bulk computation.
func (a *AnalyticsEngine) compute(
	templateID string,
	now time.Time,
) (snap *models.TemplateAnalyticsSnapshot, gen logGeneration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analytics computation for %s panicked: %v", templateID, r)
		}
	}()

	a.mu.RLock()
	gen = a.generationLocked(templateID)
	usage := append([]models.UsageEvent(nil), a.usage[templateID]...)
	perf := append([]models.PerformanceRecord(nil), a.performance[templateID]...)
	usageCounts := make(map[string]int, len(a.usage)+len(a.performance))
	for id := range a.performance {
		usageCounts[id] = 0
	}
	for id, events := range a.usage {
		usageCounts[id] = len(events)
	}
	a.mu.RUnlock()

	if len(usage) == 0 && len(perf) == 0 {
		return nil, gen, fmt.Errorf("%w: %s has no recorded events", ErrTemplateNotFound, templateID)
	}

	sort.SliceStable(usage, func(i, j int) bool { return usage[i].Timestamp.Before(usage[j].Timestamp) })
	sort.SliceStable(perf, func(i, j int) bool { return perf[i].Timestamp.Before(perf[j].Timestamp) })

	feedback := playerFeedback(perf)
	modRate := modificationRate(usage, perf)

	snap = &models.TemplateAnalyticsSnapshot{
		TemplateID:            templateID,
		TotalUsage:            len(usage),
		UniqueUsers:           uniqueUsers(usage),
		AverageRating:         feedback.AverageSatisfaction,
		CompletionRate:        models.Score01(meanCompletion(perf)).Clamp(),
		EffectivenessScore:    effectivenessScore(usage, perf, feedback, modRate),
		PopularityScore:       popularityScore(templateID, usageCounts),
		ModificationFrequency: models.Score01(modRate).Clamp(),
		CommonModifications:   commonModifications(usage, perf),
		PerformanceTrends:     performanceTrends(perf, now, a.config.TrendWindowsDays, a.config.TrendThreshold),
		SeasonalUsage:         seasonalUsage(usage),
		PlayerFeedback:        feedback,
		LastUpdated:           now,
	}
	if len(usage) > 0 {
		last := usage[len(usage)-1].Timestamp
		snap.LastUsed = &last
	}

	return snap, gen, nil
}

func effectivenessScore(
	usage []models.UsageEvent,
	perf []models.PerformanceRecord,
	feedback models.PlayerFeedback,
	modRate float64,
) float64 {
	satisfaction := neutralSatisfaction
	if feedback.Responses > 0 {
		satisfaction = float64(feedback.AverageSatisfaction)
	}

	raw := meanCompletion(perf)*completionWeight +
		(satisfaction/10)*satisfactionWeight +
		(1-injuryRate(perf))*safetyWeight +
		(1-modRate)*stabilityWeight +
		repeatUsageRate(usage)*repeatUsageWeight +
		playerProgress(perf)*progressWeight

	return models.Clamp(100*raw, 0, 100)
}

func meanCompletion(perf []models.PerformanceRecord) float64 {
	if len(perf) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range perf {
		sum += float64(r.CompletionRate.Clamp())
	}
	return sum / float64(len(perf))
}

// injuryRate is incidents per recorded session, bounded to [0,1].
func injuryRate(perf []models.PerformanceRecord) float64 {
	if len(perf) == 0 {
		return 0
	}
	incidents := 0
	for _, r := range perf {
		incidents += r.InjuryIncidents
	}
	return models.Clamp(float64(incidents)/float64(len(perf)), 0, 1)
}

// modificationRate is the share of distinct sessions in which the template was modified.
func modificationRate(usage []models.UsageEvent, perf []models.PerformanceRecord) float64 {
	sessions := make(map[string]bool)
	for _, e := range usage {
		sessions[e.SessionID] = sessions[e.SessionID] || len(e.Modifications) > 0
	}
	for _, r := range perf {
		sessions[r.SessionID] = sessions[r.SessionID] || len(r.Modifications) > 0
	}
	if len(sessions) == 0 {
		return 0
	}
	modified := 0
	for _, m := range sessions {
		if m {
			modified++
		}
	}
	return float64(modified) / float64(len(sessions))
}

func uniqueUsers(usage []models.UsageEvent) int {
	users := make(map[string]struct{})
	for _, e := range usage {
		users[e.UserID] = struct{}{}
	}
	return len(users)
}

// repeatUsageRate is the share of distinct users with more than one usage event.
func repeatUsageRate(usage []models.UsageEvent) float64 {
	counts := make(map[string]int)
	for _, e := range usage {
		counts[e.UserID]++
	}
	if len(counts) == 0 {
		return 0
	}
	repeat := 0
	for _, c := range counts {
		if c > 1 {
			repeat++
		}
	}
	return float64(repeat) / float64(len(counts))
}

// playerProgress compares each player's first and last completion rate across
// at least two sessions and re-centres the mean delta around 0.5.
func playerProgress(perf []models.PerformanceRecord) float64 {
	history := make(map[string][]float64)
	for _, r := range perf {
		for _, m := range r.PlayerMetrics {
			history[m.PlayerID] = append(history[m.PlayerID], float64(m.CompletionRate.Clamp()))
		}
	}

	sum, players := 0.0, 0
	for _, rates := range history {
		if len(rates) < 2 {
			continue
		}
		sum += rates[len(rates)-1] - rates[0]
		players++
	}
	if players == 0 {
		return neutralProgress
	}
	return models.Clamp(neutralProgress+(sum/float64(players))/2, 0, 1)
}

// popularityScore min-max normalises usage counts across tracked templates.
func popularityScore(templateID string, counts map[string]int) float64 {
	if len(counts) < 2 {
		return 0
	}
	lo, hi := -1, -1
	for _, c := range counts {
		if lo < 0 || c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if hi == lo {
		return 50
	}
	return models.Clamp(100*float64(counts[templateID]-lo)/float64(hi-lo), 0, 100)
}

func commonModifications(usage []models.UsageEvent, perf []models.PerformanceRecord) []models.ModificationPattern {
	counts := make(map[models.ModificationKind]int)
	sessions := make(map[string]struct{})
	for _, e := range usage {
		sessions[e.SessionID] = struct{}{}
		for _, m := range e.Modifications {
			counts[m.Kind]++
		}
	}
	for _, r := range perf {
		sessions[r.SessionID] = struct{}{}
		for _, m := range r.Modifications {
			counts[m.Kind]++
		}
	}

	patterns := make([]models.ModificationPattern, 0, len(counts))
	for kind, c := range counts {
		freq := 0.0
		if len(sessions) > 0 {
			freq = float64(c) / float64(len(sessions))
		}
		patterns = append(patterns, models.ModificationPattern{
			Kind:      kind,
			Count:     c,
			Frequency: models.Score01(freq).Clamp(),
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Kind < patterns[j].Kind
	})
	return patterns
}

// playerFeedback uses per-player ratings when present and falls back to the
// session-level rating otherwise.
func playerFeedback(perf []models.PerformanceRecord) models.PlayerFeedback {
	ratings := make([]float64, 0)
	for _, r := range perf {
		perPlayer := 0
		for _, m := range r.PlayerMetrics {
			if m.Satisfaction != nil {
				ratings = append(ratings, float64(m.Satisfaction.Clamp()))
				perPlayer++
			}
		}
		if perPlayer == 0 && r.Satisfaction != nil {
			ratings = append(ratings, float64(r.Satisfaction.Clamp()))
		}
	}

	fb := models.PlayerFeedback{Responses: len(ratings), Sentiment: models.SentimentNeutral}
	if len(ratings) == 0 {
		return fb
	}

	sum, positive, negative := 0.0, 0, 0
	for _, v := range ratings {
		sum += v
		switch {
		case v >= positiveSatisfaction:
			positive++
		case v <= negativeSatisfaction:
			negative++
		}
	}
	avg := sum / float64(len(ratings))
	fb.AverageSatisfaction = models.Rating010(avg).Clamp()
	fb.PositiveRatio = float64(positive) / float64(len(ratings))
	fb.NegativeRatio = float64(negative) / float64(len(ratings))
	switch {
	case avg >= positiveSatisfaction:
		fb.Sentiment = models.SentimentPositive
	case avg <= negativeSatisfaction:
		fb.Sentiment = models.SentimentNegative
	}
	return fb
}

package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/pkg/models"
)

// Algorithm tags reported in result metadata.
const (
	AlgorithmHybrid             = "hybrid"
	AlgorithmPopularityFallback = "popularity_fallback"
)

// RecommendationSignals is what the ranker needs from analytics.
type RecommendationSignals interface {
	EffectivenessSource
	RecentlyUsed(templateID string, since time.Time) bool
}

// generator is one candidate strategy bound to its source tag.
type generator struct {
	source models.CandidateSource
	run    func(context.Context, *models.RecommendationContext) ([]models.RecommendationCandidate, error)
}

// RecommendationOrchestrator runs the candidate generators, merges their
// output, applies hard filters and ranks the result.
type RecommendationOrchestrator struct {
	algorithms   *RecommendationAlgorithmsService
	catalog      *FeatureCatalog
	interactions *InteractionStore
	signals      RecommendationSignals
	explanations *ExplanationService
	filter       *HardFilter
	config       *config.RecommendationConfig
	metrics      *MetricsCollector
	logger       *logrus.Logger
	now          func() time.Time
}

// NewRecommendationOrchestrator creates a new recommendation orchestrator
func NewRecommendationOrchestrator(
	algorithms *RecommendationAlgorithmsService,
	catalog *FeatureCatalog,
	interactions *InteractionStore,
	signals RecommendationSignals,
	explanations *ExplanationService,
	filter *HardFilter,
	config *config.RecommendationConfig,
	metrics *MetricsCollector,
	logger *logrus.Logger,
) *RecommendationOrchestrator {
	return &RecommendationOrchestrator{
		algorithms:   algorithms,
		catalog:      catalog,
		interactions: interactions,
		signals:      signals,
		explanations: explanations,
		filter:       filter,
		config:       config,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// GenerateRecommendations produces the ranked, explained result for rc.
func (o *RecommendationOrchestrator) GenerateRecommendations(
	ctx context.Context,
	rc *models.RecommendationContext,
) (*models.RecommendationResult, error) {
	startTime := o.now()

	if rc == nil || rc.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}

	limit := rc.Limit
	if limit <= 0 {
		limit = o.config.DefaultLimit
	}
	if limit <= 0 {
		limit = 10
	}

	algorithm := AlgorithmHybrid
	generators := o.generators()
	if !o.interactions.HasHistory(rc.UserID) {
		algorithm = AlgorithmPopularityFallback
		generators = []generator{{source: models.SourcePopularity, run: o.algorithms.PopularityBasedRecommendations}}
	}

	results, err := o.executeAlgorithmsParallel(ctx, rc, generators)
	if err != nil {
		return nil, fmt.Errorf("failed to generate candidates: %w", err)
	}

	merged := o.mergeCandidates(results)
	filtered, dropped := o.applyHardFilters(merged, rc)
	ranked := o.rank(ctx, filtered)

	recommendations := ranked
	if len(recommendations) > limit {
		recommendations = ranked[:limit]
	}
	alternatives := make([]models.RecommendationCandidate, 0)
	if len(ranked) > limit {
		end := limit + o.alternativeCount()
		if end > len(ranked) {
			end = len(ranked)
		}
		alternatives = ranked[limit:end]
	}

	result := &models.RecommendationResult{
		UserID:             rc.UserID,
		Recommendations:    recommendations,
		Explanations:       o.explanations.GenerateExplanations(ctx, recommendations),
		AlternativeOptions: alternatives,
		Metadata: models.RecommendationMetadata{
			RequestID:          uuid.New(),
			Algorithm:          algorithm,
			Confidence:         averageConfidence(recommendations),
			ContextFactorsUsed: contextFactorsUsed(recommendations),
			FilteringCriteria:  o.filter.Criteria(rc),
			GeneratedAt:        o.now(),
		},
	}

	latency := time.Since(startTime)
	o.metrics.RecordRecommendation(algorithm, latency)

	o.logger.WithFields(logrus.Fields{
		"user_id":      rc.UserID,
		"algorithm":    algorithm,
		"candidates":   len(merged),
		"filtered_out": dropped,
		"returned":     len(recommendations),
		"alternatives": len(alternatives),
		"latency":      latency,
	}).Info("Recommendations generated")

	return result, nil
}

func (o *RecommendationOrchestrator) generators() []generator {
	return []generator{
		{source: models.SourceCollaborative, run: o.algorithms.CollaborativeFilteringRecommendations},
		{source: models.SourceContentBased, run: o.algorithms.ContentBasedRecommendations},
		{source: models.SourcePopularity, run: o.algorithms.PopularityBasedRecommendations},
		{source: models.SourceContextual, run: o.algorithms.ContextualRecommendations},
	}
}

// executeAlgorithmsParallel runs the generators concurrently. A generator
// falling back to popularity still reports under its own source so its weight
// applies to the fallback candidates.
func (o *RecommendationOrchestrator) executeAlgorithmsParallel(
	ctx context.Context,
	rc *models.RecommendationContext,
	generators []generator,
) (map[models.CandidateSource][]models.RecommendationCandidate, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(generators))

	var mu sync.Mutex
	results := make(map[models.CandidateSource][]models.RecommendationCandidate, len(generators))

	for _, gen := range generators {
		gen := gen
		g.Go(func() error {
			start := time.Now()
			candidates, err := gen.run(gctx, rc)
			if err != nil {
				return fmt.Errorf("%s: %w", gen.source, err)
			}

			o.metrics.RecordCandidates(string(gen.source), len(candidates))
			o.logger.WithFields(logrus.Fields{
				"source":     gen.source,
				"user_id":    rc.UserID,
				"candidates": len(candidates),
				"latency":    time.Since(start),
			}).Debug("Candidate generation completed")

			mu.Lock()
			results[gen.source] = candidates
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type mergedCandidate struct {
	candidate      models.RecommendationCandidate
	weightedScore  float64
	confidenceSum  float64
	confidenceSeen int
}

// mergeCandidates unions candidates by template id, keeping the maximum
// weighted score, concatenating reasons and factors and averaging confidence.
func (o *RecommendationOrchestrator) mergeCandidates(
	results map[models.CandidateSource][]models.RecommendationCandidate,
) []models.RecommendationCandidate {
	sources := make([]models.CandidateSource, 0, len(results))
	for source := range results {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	byTemplate := make(map[string]*mergedCandidate)
	order := make([]string, 0)

	for _, source := range sources {
		weight := o.sourceWeight(source)
		for _, c := range results[source] {
			weighted := float64(c.Score.Clamp()) * weight

			m, ok := byTemplate[c.TemplateID]
			if !ok {
				m = &mergedCandidate{
					candidate:     models.RecommendationCandidate{TemplateID: c.TemplateID},
					weightedScore: weighted,
				}
				byTemplate[c.TemplateID] = m
				order = append(order, c.TemplateID)
			}
			if weighted > m.weightedScore {
				m.weightedScore = weighted
			}
			m.candidate.Reasons = append(m.candidate.Reasons, c.Reasons...)
			m.candidate.ContextFactors = append(m.candidate.ContextFactors, c.ContextFactors...)
			m.candidate.Sources = append(m.candidate.Sources, source)
			m.confidenceSum += float64(c.Confidence.Clamp())
			m.confidenceSeen++
		}
	}

	merged := make([]models.RecommendationCandidate, 0, len(order))
	for _, id := range order {
		m := byTemplate[id]
		m.candidate.Score = models.Score01(m.weightedScore).Clamp()
		if m.confidenceSeen > 0 {
			m.candidate.Confidence = models.Score01(m.confidenceSum / float64(m.confidenceSeen)).Clamp()
		}
		merged = append(merged, m.candidate)
	}
	return merged
}

func (o *RecommendationOrchestrator) sourceWeight(source models.CandidateSource) float64 {
	w := o.config.Weights
	switch source {
	case models.SourceCollaborative:
		return w.Collaborative
	case models.SourceContentBased:
		return w.ContentBased
	case models.SourcePopularity:
		return w.Popularity
	case models.SourceContextual:
		return w.Contextual
	default:
		return 0
	}
}

// applyHardFilters drops candidates with no feature vector or violating any
// hard constraint. It returns the survivors and the number dropped.
func (o *RecommendationOrchestrator) applyHardFilters(
	candidates []models.RecommendationCandidate,
	rc *models.RecommendationContext,
) ([]models.RecommendationCandidate, int) {
	kept := make([]models.RecommendationCandidate, 0, len(candidates))
	for _, c := range candidates {
		v, ok := o.catalog.Get(c.TemplateID)
		if !ok {
			continue
		}
		if failed := o.filter.Check(v, rc); failed != "" {
			o.logger.WithFields(logrus.Fields{
				"template_id": c.TemplateID,
				"filter":      failed,
			}).Debug("Candidate removed by hard filter")
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(candidates) - len(kept)
}

// rank applies the final scoring formula and sorts descending, ties by id.
func (o *RecommendationOrchestrator) rank(
	ctx context.Context,
	candidates []models.RecommendationCandidate,
) []models.RecommendationCandidate {
	since := o.now().Add(-o.recencyWindow())
	for i := range candidates {
		c := &candidates[i]
		effectiveness, _ := o.signals.EffectivenessScore(ctx, c.TemplateID)
		recency := 1.0
		if o.signals.RecentlyUsed(c.TemplateID, since) {
			recency = o.recencyBoost()
		}
		final := float64(c.Score) *
			(1 + effectiveness/100) *
			recency *
			(1 - o.diversityPenalty(*c)) *
			float64(c.Confidence)
		c.Score = models.Score01(final).Clamp()
	}
	sortCandidates(candidates)
	return candidates
}

// diversityPenalty is a hook for de-duplicating near-identical templates; no
// penalty is applied yet.
func (o *RecommendationOrchestrator) diversityPenalty(models.RecommendationCandidate) float64 {
	return 0
}

func (o *RecommendationOrchestrator) recencyWindow() time.Duration {
	if o.config.RecencyWindow > 0 {
		return o.config.RecencyWindow
	}
	return 7 * 24 * time.Hour
}

func (o *RecommendationOrchestrator) recencyBoost() float64 {
	if o.config.RecencyBoost > 0 {
		return o.config.RecencyBoost
	}
	return 1.1
}

func (o *RecommendationOrchestrator) alternativeCount() int {
	if o.config.AlternativeCount > 0 {
		return o.config.AlternativeCount
	}
	return 5
}

func averageConfidence(candidates []models.RecommendationCandidate) models.Score01 {
	if len(candidates) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candidates {
		sum += float64(c.Confidence)
	}
	return models.Score01(sum / float64(len(candidates))).Clamp()
}

func contextFactorsUsed(candidates []models.RecommendationCandidate) []models.ContextFactorKind {
	seen := make(map[models.ContextFactorKind]struct{})
	kinds := make([]models.ContextFactorKind, 0)
	for _, c := range candidates {
		for _, f := range c.ContextFactors {
			if _, ok := seen[f.Kind]; ok {
				continue
			}
			seen[f.Kind] = struct{}{}
			kinds = append(kinds, f.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/pkg/models"
)

// Prior score for templates with no recorded outcomes yet.
const unknownEffectivenessPrior = 0.5

// EffectivenessSource supplies template effectiveness to the popularity generator.
type EffectivenessSource interface {
	EffectivenessScore(ctx context.Context, templateID string) (float64, bool)
}

// RecommendationAlgorithmsService implements the four candidate generators.
// Every generator falls back to popularity when the user has no history.
type RecommendationAlgorithmsService struct {
	catalog      *FeatureCatalog
	interactions *InteractionStore
	similarity   *SimilarityEngine
	analytics    EffectivenessSource
	filter       *HardFilter
	normalizer   *TextNormalizer
	config       *config.RecommendationConfig
	logger       *logrus.Logger
}

// NewRecommendationAlgorithmsService creates a new recommendation algorithms service
func NewRecommendationAlgorithmsService(
	catalog *FeatureCatalog,
	interactions *InteractionStore,
	similarity *SimilarityEngine,
	analytics EffectivenessSource,
	filter *HardFilter,
	normalizer *TextNormalizer,
	config *config.RecommendationConfig,
	logger *logrus.Logger,
) *RecommendationAlgorithmsService {
	return &RecommendationAlgorithmsService{
		catalog:      catalog,
		interactions: interactions,
		similarity:   similarity,
		analytics:    analytics,
		filter:       filter,
		normalizer:   normalizer,
		config:       config,
		logger:       logger,
	}
}

// CollaborativeFilteringRecommendations scores templates liked by the user's
// most similar neighbours. Each candidate's score is the clamped sum of
// rating × similarity over contributing neighbours.
func (s *RecommendationAlgorithmsService) CollaborativeFilteringRecommendations(
	ctx context.Context,
	rc *models.RecommendationContext,
) ([]models.RecommendationCandidate, error) {
	if !s.interactions.HasHistory(rc.UserID) {
		return s.PopularityBasedRecommendations(ctx, rc)
	}

	neighbors := s.similarity.UserNeighbors(ctx, rc.UserID, s.neighborCount())
	if len(neighbors) == 0 {
		s.logger.WithField("user_id", rc.UserID).Debug("No similar users, using popularity")
		return s.PopularityBasedRecommendations(ctx, rc)
	}

	own := s.interactions.UserScores(rc.UserID)

	type accumulator struct {
		sum          float64
		weightSum    float64
		contributors int
		reasons      []models.Reason
	}
	scores := make(map[string]*accumulator)

	for _, n := range neighbors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for templateID, rating := range s.interactions.UserScores(n.UserB) {
			if rating <= s.config.LikedThreshold {
				continue
			}
			if _, seen := own[templateID]; seen {
				continue
			}
			if _, ok := s.catalog.Get(templateID); !ok {
				continue
			}
			acc, ok := scores[templateID]
			if !ok {
				acc = &accumulator{}
				scores[templateID] = acc
			}
			contribution := rating * n.Score
			acc.sum += contribution
			acc.weightSum += n.Score
			acc.contributors++
			acc.reasons = append(acc.reasons, models.Reason{
				Kind:        models.ReasonSimilarUsers,
				Weight:      contribution,
				Description: fmt.Sprintf("A player with %.0f%% similar ratings liked this", n.Score*100),
			})
		}
	}

	candidates := make([]models.RecommendationCandidate, 0, len(scores))
	for templateID, acc := range scores {
		candidates = append(candidates, models.RecommendationCandidate{
			TemplateID: templateID,
			Score:      models.Score01(acc.sum).Clamp(),
			Reasons:    acc.reasons,
			Confidence: models.Score01(s.calculateCollaborativeConfidence(acc.contributors, acc.weightSum)).Clamp(),
			Sources:    []models.CandidateSource{models.SourceCollaborative},
		})
	}

	sortCandidates(candidates)
	return candidates, nil
}

// ContentBasedRecommendations expands the user's liked templates to their
// most similar neighbours in the template matrix.
func (s *RecommendationAlgorithmsService) ContentBasedRecommendations(
	ctx context.Context,
	rc *models.RecommendationContext,
) ([]models.RecommendationCandidate, error) {
	if !s.interactions.HasHistory(rc.UserID) {
		return s.PopularityBasedRecommendations(ctx, rc)
	}

	own := s.interactions.UserScores(rc.UserID)
	liked := make([]string, 0)
	for templateID, score := range own {
		if score > s.config.LikedThreshold {
			liked = append(liked, templateID)
		}
	}
	sort.Strings(liked)

	type accumulator struct {
		sum     float64
		maxSim  float64
		reasons []models.Reason
	}
	scores := make(map[string]*accumulator)

	for _, source := range liked {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sourceVector, ok := s.catalog.Get(source)
		if !ok {
			continue
		}
		for templateID, sim := range s.similarity.TemplateNeighbors(ctx, source, s.config.ContentSimilarityFloor) {
			if _, seen := own[templateID]; seen {
				continue
			}
			acc, ok := scores[templateID]
			if !ok {
				acc = &accumulator{}
				scores[templateID] = acc
			}
			acc.sum += sim
			acc.maxSim = math.Max(acc.maxSim, sim)
			acc.reasons = append(acc.reasons, models.Reason{
				Kind:        models.ReasonContentSimilarity,
				Weight:      sim,
				Description: fmt.Sprintf("Similar to %s, which you liked", sourceVector.DisplayName()),
			})
		}
	}

	candidates := make([]models.RecommendationCandidate, 0, len(scores))
	for templateID, acc := range scores {
		candidates = append(candidates, models.RecommendationCandidate{
			TemplateID: templateID,
			Score:      models.Score01(acc.sum).Clamp(),
			Reasons:    acc.reasons,
			Confidence: models.Score01(s.calculateSemanticConfidence(acc.maxSim)).Clamp(),
			Sources:    []models.CandidateSource{models.SourceContentBased},
		})
	}

	sortCandidates(candidates)
	return candidates, nil
}

// PopularityBasedRecommendations ranks the catalog by template effectiveness.
// Templates without recorded outcomes get a neutral prior.
func (s *RecommendationAlgorithmsService) PopularityBasedRecommendations(
	ctx context.Context,
	rc *models.RecommendationContext,
) ([]models.RecommendationCandidate, error) {
	own := s.interactions.UserScores(rc.UserID)
	ids := s.catalog.IDs(s.config.MaxCatalogSize)

	candidates := make([]models.RecommendationCandidate, 0, len(ids))
	for _, templateID := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, seen := own[templateID]; seen {
			continue
		}

		score := unknownEffectivenessPrior
		description := "New template, not yet rated by other teams"
		if eff, ok := s.analytics.EffectivenessScore(ctx, templateID); ok {
			score = eff / 100
			description = fmt.Sprintf("%.0f%% effectiveness across recorded sessions", eff)
		}

		candidates = append(candidates, models.RecommendationCandidate{
			TemplateID: templateID,
			Score:      models.Score01(score).Clamp(),
			Reasons: []models.Reason{{
				Kind:        models.ReasonSuccessRate,
				Weight:      score,
				Description: description,
			}},
			Confidence: models.Score01(s.config.PopularityConfidence).Clamp(),
			Sources:    []models.CandidateSource{models.SourcePopularity},
		})
	}

	sortCandidates(candidates)
	return candidates, nil
}

// ContextualRecommendations scores the catalog by seasonal fit after applying
// the equipment and duration filters, and attaches context factors.
func (s *RecommendationAlgorithmsService) ContextualRecommendations(
	ctx context.Context,
	rc *models.RecommendationContext,
) ([]models.RecommendationCandidate, error) {
	if !s.interactions.HasHistory(rc.UserID) {
		return s.PopularityBasedRecommendations(ctx, rc)
	}

	recent := make(map[string]struct{}, len(rc.RecentWorkouts))
	for _, id := range rc.RecentWorkouts {
		recent[id] = struct{}{}
	}
	goals := s.normalizer.NameSet(rc.TrainingGoals)

	candidates := make([]models.RecommendationCandidate, 0)
	for _, v := range s.catalog.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.filter.EquipmentAvailable(v, rc.AvailableEquipment) || !s.filter.WithinTime(v, rc.AvailableTime) {
			continue
		}

		influence := SeasonalInfluence(v.Type, rc.Season)
		factors := []models.ContextFactor{{
			Kind:        models.FactorSeason,
			Influence:   influence,
			Description: fmt.Sprintf("%s work suits the %s", titleCase(string(v.Type)), rc.Season),
		}}
		factors = append(factors, s.contextFactors(v, rc, goals, recent)...)

		candidates = append(candidates, models.RecommendationCandidate{
			TemplateID: v.TemplateID,
			Score:      models.Score01(influence).Clamp(),
			Reasons: []models.Reason{{
				Kind:        models.ReasonSeasonalTrend,
				Weight:      influence,
				Description: fmt.Sprintf("Fits %s training priorities", rc.Season),
			}},
			ContextFactors: factors,
			Confidence:     models.Score01(s.config.ContextualConfidence).Clamp(),
			Sources:        []models.CandidateSource{models.SourceContextual},
		})
		if s.config.MaxCatalogSize > 0 && len(candidates) >= s.config.MaxCatalogSize {
			break
		}
	}

	sortCandidates(candidates)
	return candidates, nil
}

func (s *RecommendationAlgorithmsService) contextFactors(
	v models.TemplateFeatureVector,
	rc *models.RecommendationContext,
	goals map[string]struct{},
	recent map[string]struct{},
) []models.ContextFactor {
	factors := make([]models.ContextFactor, 0, 4)

	if rc.AvailableTime > 0 && v.Duration > 0 {
		fit := models.Clamp(float64(v.Duration)/float64(rc.AvailableTime), 0, 1)
		factors = append(factors, models.ContextFactor{
			Kind:        models.FactorTimeAvailable,
			Influence:   fit,
			Description: fmt.Sprintf("Fits your %d-minute window", rc.AvailableTime),
		})
	}

	if len(v.Equipment) > 0 {
		factors = append(factors, models.ContextFactor{
			Kind:        models.FactorEquipment,
			Influence:   0.4,
			Description: "Uses equipment you have on hand",
		})
	}

	if p, d := rc.PlayerLevel.Ordinal(), v.Difficulty.Ordinal(); p >= 0 && d >= 0 {
		influence := 0.3
		if p == d {
			influence = 0.7
		}
		factors = append(factors, models.ContextFactor{
			Kind:        models.FactorPlayerLevel,
			Influence:   influence,
			Description: fmt.Sprintf("Pitched at %s level", v.Difficulty),
		})
	}

	if goal, ok := s.matchGoal(v, goals); ok {
		factors = append(factors, models.ContextFactor{
			Kind:        models.FactorTrainingGoal,
			Influence:   0.6,
			Description: fmt.Sprintf("Targets your %s goal", goal),
		})
	}

	if _, ok := recent[v.TemplateID]; ok {
		factors = append(factors, models.ContextFactor{
			Kind:        models.FactorRecentWorkout,
			Influence:   -0.3,
			Description: "Completed recently",
		})
	}

	return factors
}

func (s *RecommendationAlgorithmsService) matchGoal(v models.TemplateFeatureVector, goals map[string]struct{}) (string, bool) {
	if len(goals) == 0 {
		return "", false
	}
	traits := s.normalizer.NameSet(v.Categories)
	for t := range s.normalizer.NameSet(v.Tags) {
		traits[t] = struct{}{}
	}
	for t := range s.normalizer.NameSet(v.PrimaryMuscleGroups) {
		traits[t] = struct{}{}
	}
	for t := range s.normalizer.NameSet(v.Keywords) {
		traits[t] = struct{}{}
	}
	traits[s.normalizer.Name(string(v.Type))] = struct{}{}

	matched := make([]string, 0)
	for g := range goals {
		if _, ok := traits[g]; ok {
			matched = append(matched, g)
		}
	}
	if len(matched) == 0 {
		return "", false
	}
	sort.Strings(matched)
	return matched[0], true
}

func (s *RecommendationAlgorithmsService) neighborCount() int {
	if s.config.NeighborCount > 0 {
		return s.config.NeighborCount
	}
	return 10
}

// Confidence calculation methods

func (s *RecommendationAlgorithmsService) calculateSemanticConfidence(similarity float64) float64 {
	// Higher similarity = higher confidence
	return math.Min(similarity*1.2, 1.0)
}

func (s *RecommendationAlgorithmsService) calculateCollaborativeConfidence(contributorCount int, weightSum float64) float64 {
	// More contributors and higher weight sum = higher confidence
	contributorFactor := math.Min(float64(contributorCount)/10.0, 1.0)
	weightFactor := math.Min(weightSum/5.0, 1.0)
	return (contributorFactor + weightFactor) / 2.0
}

// sortCandidates orders by score descending, ties by template id.
func sortCandidates(candidates []models.RecommendationCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].TemplateID < candidates[j].TemplateID
	})
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := []rune(strings.ToLower(s))
	lower[0] = unicode.ToUpper(lower[0])
	return string(lower)
}

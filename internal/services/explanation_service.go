package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/pkg/models"
)

// Thresholds for the analytics highlights added to supporting factors.
const (
	supportingInfluence       = 0.5
	highlightEffectiveness    = 75.0
	highlightNormalizedRating = 0.7
	fallbackPrimaryReason     = "Recommended for your current training context"
)

// SnapshotSource supplies analytics snapshots for explanation highlights.
type SnapshotSource interface {
	Snapshot(ctx context.Context, templateID string) (*models.TemplateAnalyticsSnapshot, error)
}

// ExplanationService turns scored candidates into human-readable explanations.
type ExplanationService struct {
	analytics SnapshotSource
	logger    *logrus.Logger
}

// NewExplanationService creates a new explanation service
func NewExplanationService(analytics SnapshotSource, logger *logrus.Logger) *ExplanationService {
	return &ExplanationService{
		analytics: analytics,
		logger:    logger,
	}
}

// GenerateExplanations returns one explanation per recommendation, in order.
func (es *ExplanationService) GenerateExplanations(
	ctx context.Context,
	recommendations []models.RecommendationCandidate,
) []models.Explanation {
	explanations := make([]models.Explanation, 0, len(recommendations))
	for _, rec := range recommendations {
		explanations = append(explanations, es.generateSingleExplanation(ctx, rec))
	}
	return explanations
}

func (es *ExplanationService) generateSingleExplanation(
	ctx context.Context,
	rec models.RecommendationCandidate,
) models.Explanation {
	explanation := models.Explanation{
		TemplateID:        rec.TemplateID,
		PrimaryReason:     fallbackPrimaryReason,
		SupportingFactors: es.supportingFactors(ctx, rec),
		ConfidenceLevel:   models.ConfidenceLevelFor(rec.Confidence),
	}

	if primary, ok := selectPrimaryReason(rec.Reasons); ok {
		explanation.PrimaryReason = primary.Description
		explanation.PrimaryReasonKind = primary.Kind
	}

	return explanation
}

// selectPrimaryReason chooses the reason with the highest weight; the first
// one wins a tie.
func selectPrimaryReason(reasons []models.Reason) (models.Reason, bool) {
	if len(reasons) == 0 {
		return models.Reason{}, false
	}
	best := reasons[0]
	for _, r := range reasons[1:] {
		if r.Weight > best.Weight {
			best = r
		}
	}
	return best, true
}

func (es *ExplanationService) supportingFactors(ctx context.Context, rec models.RecommendationCandidate) []string {
	factors := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		factors = append(factors, s)
	}

	for _, f := range rec.ContextFactors {
		if f.Influence > supportingInfluence {
			add(f.Description)
		}
	}

	if es.analytics == nil {
		return factors
	}
	snap, err := es.analytics.Snapshot(ctx, rec.TemplateID)
	if err != nil {
		// Untracked templates simply have no highlights.
		return factors
	}
	if snap.EffectivenessScore > highlightEffectiveness {
		add(fmt.Sprintf("%.0f%% effectiveness score", snap.EffectivenessScore))
	}
	if snap.PlayerFeedback.Responses > 0 && float64(snap.AverageRating.Normalized()) > highlightNormalizedRating {
		add(fmt.Sprintf("Rated %.1f/10 by players", float64(snap.AverageRating)))
	}
	return factors
}

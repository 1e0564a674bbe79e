package models

import (
	"time"

	"github.com/google/uuid"
)

// CandidateSource identifies the generator that produced a candidate.
type CandidateSource string

const (
	SourceCollaborative CandidateSource = "collaborative"
	SourceContentBased  CandidateSource = "content_based"
	SourcePopularity    CandidateSource = "popularity"
	SourceContextual    CandidateSource = "contextual"
)

// Reason explains one contribution to a candidate's score.
type Reason struct {
	Kind        ReasonKind `json:"kind"`
	Weight      float64    `json:"weight"`
	Description string     `json:"description"`
}

// ContextFactor records how the caller's situation influenced a candidate.
type ContextFactor struct {
	Kind        ContextFactorKind `json:"kind"`
	Influence   float64           `json:"influence"` // [-1,1]
	Description string            `json:"description"`
}

// RecommendationCandidate is a scored template from one or more generators.
type RecommendationCandidate struct {
	TemplateID     string            `json:"template_id"`
	Score          Score01           `json:"score"`
	Reasons        []Reason          `json:"reasons"`
	ContextFactors []ContextFactor   `json:"context_factors,omitempty"`
	Confidence     Score01           `json:"confidence"`
	Sources        []CandidateSource `json:"sources,omitempty"`
}

// RecommendationContext is the per-request training situation.
type RecommendationContext struct {
	UserID              string     `json:"user_id" validate:"required"`
	TeamID              *string    `json:"team_id,omitempty"`
	Season              Season     `json:"season" validate:"required"`
	AvailableTime       int        `json:"available_time" validate:"gte=0"` // minutes, 0 = unconstrained
	AvailableEquipment  []string   `json:"available_equipment,omitempty"`
	RecentWorkouts      []string   `json:"recent_workouts,omitempty"`
	TrainingGoals       []string   `json:"training_goals,omitempty"`
	PlayerLevel         SkillLevel `json:"player_level,omitempty"`
	MedicalRestrictions []string   `json:"medical_restrictions,omitempty"`
	Limit               int        `json:"limit,omitempty" validate:"gte=0,lte=100"`
}

// Explanation is the human-readable rationale for one recommendation.
type Explanation struct {
	TemplateID        string          `json:"template_id"`
	PrimaryReason     string          `json:"primary_reason"`
	PrimaryReasonKind ReasonKind      `json:"primary_reason_kind,omitempty"`
	SupportingFactors []string        `json:"supporting_factors"`
	ConfidenceLevel   ConfidenceLevel `json:"confidence_level"`
}

// RecommendationMetadata describes how a result was produced.
type RecommendationMetadata struct {
	RequestID          uuid.UUID           `json:"request_id"`
	Algorithm          string              `json:"algorithm"`
	Confidence         Score01             `json:"confidence"`
	ContextFactorsUsed []ContextFactorKind `json:"context_factors_used"`
	FilteringCriteria  []string            `json:"filtering_criteria"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

// RecommendationResult is the ranked, explained answer to a request.
type RecommendationResult struct {
	UserID             string                    `json:"user_id"`
	Recommendations    []RecommendationCandidate `json:"recommendations"`
	Explanations       []Explanation             `json:"explanations"`
	AlternativeOptions []RecommendationCandidate `json:"alternative_options"`
	Metadata           RecommendationMetadata    `json:"metadata"`
}

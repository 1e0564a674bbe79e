package models

// TemplateFeatureVector describes a workout template for similarity and filtering.
// The engine treats it as an immutable snapshot supplied by the template catalog.
type TemplateFeatureVector struct {
	TemplateID          string      `json:"template_id" validate:"required"`
	Name                string      `json:"name,omitempty"`
	Type                WorkoutType `json:"type" validate:"required"`
	Categories          []string    `json:"categories,omitempty"`
	Equipment           []string    `json:"equipment,omitempty"`
	Difficulty          SkillLevel  `json:"difficulty" validate:"required"`
	Duration            int         `json:"duration" validate:"gte=0"` // minutes
	PrimaryMuscleGroups []string    `json:"primary_muscle_groups,omitempty"`
	Keywords            []string    `json:"keywords,omitempty"`
	Tags                []string    `json:"tags,omitempty"`
	IntensityScore      Score01     `json:"intensity_score" validate:"gte=0,lte=1"`
	ComplexityScore     Score01     `json:"complexity_score" validate:"gte=0,lte=1"`
}

// DisplayName falls back to the template id when no name is known.
func (v *TemplateFeatureVector) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.TemplateID
}

// SimilarityFactors is the per-component breakdown of a template similarity.
type SimilarityFactors struct {
	Type       float64 `json:"type"`
	Difficulty float64 `json:"difficulty"`
	Equipment  float64 `json:"equipment"`
	Category   float64 `json:"category"`
	Duration   float64 `json:"duration"`
	Keywords   float64 `json:"keywords"`
}

// SimilarityEdge is an undirected template–template similarity.
type SimilarityEdge struct {
	TemplateA string            `json:"template_a"`
	TemplateB string            `json:"template_b"`
	Score     Score01           `json:"score"`
	Factors   SimilarityFactors `json:"factors"`
}

// UserSimilarityEdge is an undirected Pearson correlation between two users.
type UserSimilarityEdge struct {
	UserA         string  `json:"user_a"`
	UserB         string  `json:"user_b"`
	Score         float64 `json:"score"` // [-1,1]
	CommonRatings int     `json:"common_ratings"`
}

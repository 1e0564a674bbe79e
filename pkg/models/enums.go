package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WorkoutType is the training focus of a template.
type WorkoutType string

const (
	WorkoutStrength     WorkoutType = "STRENGTH"
	WorkoutConditioning WorkoutType = "CONDITIONING"
	WorkoutAgility      WorkoutType = "AGILITY"
	WorkoutSkill        WorkoutType = "SKILL"
	WorkoutHybrid       WorkoutType = "HYBRID"
	WorkoutRecovery     WorkoutType = "RECOVERY"
	WorkoutFlexibility  WorkoutType = "FLEXIBILITY"
)

var workoutTypes = []WorkoutType{
	WorkoutStrength, WorkoutConditioning, WorkoutAgility, WorkoutSkill,
	WorkoutHybrid, WorkoutRecovery, WorkoutFlexibility,
}

func (t WorkoutType) Valid() bool { return contains(workoutTypes, t) }

func ParseWorkoutType(raw string) (WorkoutType, error) {
	return parseEnum(strings.ToUpper(strings.TrimSpace(raw)), workoutTypes, "workout type")
}

func (t *WorkoutType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, ParseWorkoutType)
}

// SkillLevel orders template difficulty and player level on the same scale.
// The zero value means "not specified".
type SkillLevel string

const (
	LevelUnspecified  SkillLevel = ""
	LevelBeginner     SkillLevel = "beginner"
	LevelIntermediate SkillLevel = "intermediate"
	LevelAdvanced     SkillLevel = "advanced"
	LevelElite        SkillLevel = "elite"
)

var skillLevels = []SkillLevel{LevelBeginner, LevelIntermediate, LevelAdvanced, LevelElite}

func (l SkillLevel) Valid() bool { return contains(skillLevels, l) }

// Ordinal returns 0..3 for known levels and -1 for an unspecified level.
func (l SkillLevel) Ordinal() int {
	for i, v := range skillLevels {
		if v == l {
			return i
		}
	}
	return -1
}

func ParseSkillLevel(raw string) (SkillLevel, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return LevelUnspecified, nil
	}
	return parseEnum(raw, skillLevels, "skill level")
}

func (l *SkillLevel) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, l, ParseSkillLevel)
}

// Season is the hockey calendar bucket a request or usage event falls into.
type Season string

const (
	SeasonOffseason Season = "offseason"
	SeasonPreseason Season = "preseason"
	SeasonInseason  Season = "inseason"
	SeasonPlayoffs  Season = "playoffs"
)

var seasons = []Season{SeasonOffseason, SeasonPreseason, SeasonInseason, SeasonPlayoffs}

// Seasons lists every season bucket in calendar order starting from July.
func Seasons() []Season { return append([]Season(nil), seasons...) }

func (s Season) Valid() bool { return contains(seasons, s) }

func ParseSeason(raw string) (Season, error) {
	return parseEnum(strings.ToLower(strings.TrimSpace(raw)), seasons, "season")
}

func (s *Season) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, ParseSeason)
}

// SeasonForMonth maps a calendar month onto the fixed hockey season buckets:
// Jul–Sep offseason, Oct–Nov preseason, Dec–Mar inseason, Apr–Jun playoffs.
func SeasonForMonth(m int) Season {
	switch {
	case m >= 7 && m <= 9:
		return SeasonOffseason
	case m == 10 || m == 11:
		return SeasonPreseason
	case m == 12 || m <= 3:
		return SeasonInseason
	default:
		return SeasonPlayoffs
	}
}

// SessionType describes the kind of session a template was used in.
type SessionType string

const (
	SessionPractice   SessionType = "practice"
	SessionGamePrep   SessionType = "game_prep"
	SessionRecovery   SessionType = "recovery"
	SessionIndividual SessionType = "individual"
	SessionTeam       SessionType = "team"
	SessionTesting    SessionType = "testing"
)

var sessionTypes = []SessionType{
	SessionPractice, SessionGamePrep, SessionRecovery, SessionIndividual, SessionTeam, SessionTesting,
}

func (s SessionType) Valid() bool { return contains(sessionTypes, s) }

func ParseSessionType(raw string) (SessionType, error) {
	return parseEnum(strings.ToLower(strings.TrimSpace(raw)), sessionTypes, "session type")
}

func (s *SessionType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, ParseSessionType)
}

// ModificationKind classifies how a coach changed a template during a session.
type ModificationKind string

const (
	ModExerciseSubstitution ModificationKind = "exercise_substitution"
	ModExerciseAdded        ModificationKind = "exercise_added"
	ModExerciseRemoved      ModificationKind = "exercise_removed"
	ModDurationChange       ModificationKind = "duration_change"
	ModIntensityChange      ModificationKind = "intensity_change"
	ModSetRepChange         ModificationKind = "set_rep_change"
	ModRestChange           ModificationKind = "rest_change"
)

var modificationKinds = []ModificationKind{
	ModExerciseSubstitution, ModExerciseAdded, ModExerciseRemoved, ModDurationChange,
	ModIntensityChange, ModSetRepChange, ModRestChange,
}

func (k ModificationKind) Valid() bool { return contains(modificationKinds, k) }

func ParseModificationKind(raw string) (ModificationKind, error) {
	return parseEnum(strings.ToLower(strings.TrimSpace(raw)), modificationKinds, "modification kind")
}

func (k *ModificationKind) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, k, ParseModificationKind)
}

// InteractionKind is a behavioural signal recorded against a (user, template) pair.
type InteractionKind string

const (
	InteractionViewed    InteractionKind = "viewed"
	InteractionStarted   InteractionKind = "started"
	InteractionCompleted InteractionKind = "completed"
	InteractionRated     InteractionKind = "rated"
	InteractionSkipped   InteractionKind = "skipped"
)

var interactionKinds = []InteractionKind{
	InteractionViewed, InteractionStarted, InteractionCompleted, InteractionRated, InteractionSkipped,
}

func (k InteractionKind) Valid() bool { return contains(interactionKinds, k) }

func ParseInteractionKind(raw string) (InteractionKind, error) {
	return parseEnum(strings.ToLower(strings.TrimSpace(raw)), interactionKinds, "interaction kind")
}

func (k *InteractionKind) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, k, ParseInteractionKind)
}

// ReasonKind tags why a candidate was produced.
type ReasonKind string

const (
	ReasonSimilarUsers      ReasonKind = "similar_users"
	ReasonContentSimilarity ReasonKind = "content_similarity"
	ReasonSuccessRate       ReasonKind = "success_rate"
	ReasonSeasonalTrend     ReasonKind = "seasonal_trend"
)

var reasonKinds = []ReasonKind{ReasonSimilarUsers, ReasonContentSimilarity, ReasonSuccessRate, ReasonSeasonalTrend}

func (k ReasonKind) Valid() bool { return contains(reasonKinds, k) }

func ParseReasonKind(raw string) (ReasonKind, error) {
	return parseEnum(strings.ToLower(strings.TrimSpace(raw)), reasonKinds, "reason kind")
}

func (k *ReasonKind) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, k, ParseReasonKind)
}

// ContextFactorKind tags a situational factor that influenced a candidate.
type ContextFactorKind string

const (
	FactorSeason        ContextFactorKind = "season"
	FactorEquipment     ContextFactorKind = "equipment"
	FactorTimeAvailable ContextFactorKind = "time_available"
	FactorPlayerLevel   ContextFactorKind = "player_level"
	FactorTrainingGoal  ContextFactorKind = "training_goal"
	FactorRecentWorkout ContextFactorKind = "recent_workout"
)

var contextFactorKinds = []ContextFactorKind{
	FactorSeason, FactorEquipment, FactorTimeAvailable, FactorPlayerLevel, FactorTrainingGoal, FactorRecentWorkout,
}

func (k ContextFactorKind) Valid() bool { return contains(contextFactorKinds, k) }

func ParseContextFactorKind(raw string) (ContextFactorKind, error) {
	return parseEnum(strings.ToLower(strings.TrimSpace(raw)), contextFactorKinds, "context factor kind")
}

func (k *ContextFactorKind) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, k, ParseContextFactorKind)
}

// TrendDirection classifies a metric's movement between two halves of a window.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// ConfidenceLevel buckets a 0–1 confidence for display.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ConfidenceLevelFor buckets c into high (>0.7), medium (>0.4) or low.
func ConfidenceLevelFor(c Score01) ConfidenceLevel {
	switch {
	case c > 0.7:
		return ConfidenceHigh
	case c > 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Sentiment summarises player feedback for a template.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func parseEnum[T ~string](raw string, set []T, name string) (T, error) {
	v := T(raw)
	if !contains(set, v) {
		var zero T
		return zero, fmt.Errorf("unknown %s %q", name, raw)
	}
	return v, nil
}

func unmarshalEnum[T ~string](data []byte, dst *T, parse func(string) (T, error)) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := parse(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnums(t *testing.T) {
	wt, err := ParseWorkoutType(" strength ")
	require.NoError(t, err)
	assert.Equal(t, WorkoutStrength, wt)

	_, err = ParseWorkoutType("yoga")
	assert.Error(t, err)

	season, err := ParseSeason("PreSeason")
	require.NoError(t, err)
	assert.Equal(t, SeasonPreseason, season)

	_, err = ParseSeason("PRE_SEASON")
	assert.Error(t, err)

	level, err := ParseSkillLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelUnspecified, level)
	assert.Equal(t, -1, level.Ordinal())
	assert.Equal(t, 3, LevelElite.Ordinal())

	kind, err := ParseInteractionKind("Completed")
	require.NoError(t, err)
	assert.Equal(t, InteractionCompleted, kind)
}

func TestEnumUnmarshalJSON(t *testing.T) {
	var req InteractionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":"u1","template_id":"t1","kind":"RATED","rating":7}`), &req))
	assert.Equal(t, InteractionRated, req.Kind)
	require.NotNil(t, req.Rating)
	assert.Equal(t, Rating010(7), *req.Rating)

	err := json.Unmarshal([]byte(`{"user_id":"u1","template_id":"t1","kind":"liked"}`), &req)
	assert.Error(t, err)

	var v TemplateFeatureVector
	err = json.Unmarshal([]byte(`{"template_id":"t1","type":"STRENGTH","difficulty":"expert"}`), &v)
	assert.Error(t, err)
}

func TestSeasonForMonth(t *testing.T) {
	expected := map[int]Season{
		1: SeasonInseason, 2: SeasonInseason, 3: SeasonInseason,
		4: SeasonPlayoffs, 5: SeasonPlayoffs, 6: SeasonPlayoffs,
		7: SeasonOffseason, 8: SeasonOffseason, 9: SeasonOffseason,
		10: SeasonPreseason, 11: SeasonPreseason,
		12: SeasonInseason,
	}
	for month, season := range expected {
		assert.Equal(t, season, SeasonForMonth(month), "month %d", month)
	}
	assert.Len(t, Seasons(), 4)
}

func TestScales(t *testing.T) {
	assert.Equal(t, Score01(1), Score01(1.4).Clamp())
	assert.Equal(t, Score01(0), Score01(-0.2).Clamp())
	assert.Equal(t, Score01(0), Score01(math.NaN()).Clamp())
	assert.Equal(t, Score01(0.75), Rating010(7.5).Normalized())
	assert.Equal(t, Rating010(10), Rating010(11).Clamp())
}

func TestConfidenceLevelFor(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceLevelFor(0.71))
	assert.Equal(t, ConfidenceMedium, ConfidenceLevelFor(0.7))
	assert.Equal(t, ConfidenceMedium, ConfidenceLevelFor(0.41))
	assert.Equal(t, ConfidenceLow, ConfidenceLevelFor(0.4))
}

func TestJWTClaims_HasRole(t *testing.T) {
	claims := &JWTClaims{UserID: "coach-1", Roles: []string{"coach", "analyst"}}
	assert.True(t, claims.HasRole("analyst"))
	assert.False(t, claims.HasRole("admin"))
}

func TestTemplateFeatureVector_DisplayName(t *testing.T) {
	v := TemplateFeatureVector{TemplateID: "t1"}
	assert.Equal(t, "t1", v.DisplayName())
	v.Name = "Edge control"
	assert.Equal(t, "Edge control", v.DisplayName())
}

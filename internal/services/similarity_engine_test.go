package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/drillsense/pkg/models"
)

func TestJaccard(t *testing.T) {
	set := func(items ...string) map[string]struct{} {
		s := make(map[string]struct{}, len(items))
		for _, i := range items {
			s[i] = struct{}{}
		}
		return s
	}

	assert.InDelta(t, 1.0/3.0, jaccard(set("a", "b"), set("b", "c")), 1e-9)
	assert.InDelta(t, 1.0, jaccard(set("a"), set("a")), 1e-9)
	assert.Equal(t, 0.0, jaccard(set(), set()))
	assert.Equal(t, 0.0, jaccard(set("a"), set()))
}

func TestDurationCloseness(t *testing.T) {
	assert.InDelta(t, 0.5, durationCloseness(30, 60), 1e-9)
	assert.InDelta(t, 0.5, durationCloseness(60, 30), 1e-9)
	assert.InDelta(t, 1.0, durationCloseness(45, 45), 1e-9)
	assert.Equal(t, 0.0, durationCloseness(0, 0))
	assert.Equal(t, 0.0, durationCloseness(0, 20))
}

func TestTermCosine(t *testing.T) {
	n := NewTextNormalizer()

	same := n.TermFrequencies([]string{"Explosive power", "skating"})
	assert.InDelta(t, 1.0, termCosine(same, n.TermFrequencies([]string{"explosive POWER", "Skating"})), 1e-9)
	assert.Equal(t, 0.0, termCosine(same, n.TermFrequencies([]string{"recovery"})))
	assert.Equal(t, 0.0, termCosine(same, map[string]float64{}))

	partial := termCosine(same, n.TermFrequencies([]string{"power"}))
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestPearson(t *testing.T) {
	r, common := pearson(
		map[string]float64{"t1": 0.9, "t2": 0.5, "t3": 0.2},
		map[string]float64{"t1": 0.9, "t2": 0.5, "t3": 0.2, "t4": 0.7},
	)
	assert.InDelta(t, 1.0, r, 1e-9)
	assert.Equal(t, 3, common)

	r, _ = pearson(
		map[string]float64{"t1": 0.9, "t2": 0.5, "t3": 0.2},
		map[string]float64{"t1": 0.2, "t2": 0.6, "t3": 0.9},
	)
	assert.InDelta(t, -1.0, r, 1e-9)

	r, common = pearson(map[string]float64{"t1": 0.9}, map[string]float64{"t1": 0.9})
	assert.Equal(t, 0.0, r)
	assert.Equal(t, 1, common)

	// Zero variance on one side.
	r, _ = pearson(
		map[string]float64{"t1": 0.7, "t2": 0.7},
		map[string]float64{"t1": 0.1, "t2": 0.9},
	)
	assert.Equal(t, 0.0, r)
}

func TestTemplateSimilarity_SymmetricAndBounded(t *testing.T) {
	n := NewTextNormalizer()
	vectors := []models.TemplateFeatureVector{
		{
			TemplateID: "a", Type: models.WorkoutStrength, Difficulty: models.LevelIntermediate, Duration: 30,
			Equipment: []string{"Pucks"}, Categories: []string{"power"}, Keywords: []string{"explosive power"},
		},
		{
			TemplateID: "b", Type: models.WorkoutStrength, Difficulty: models.LevelIntermediate, Duration: 30,
			Equipment: []string{"pucks"}, Categories: []string{"Power"}, Keywords: []string{"Explosive power"},
		},
		{
			TemplateID: "c", Type: models.WorkoutRecovery, Difficulty: models.LevelBeginner, Duration: 60,
			Equipment: []string{"foam roller", "pucks"}, Keywords: []string{"mobility"},
		},
		{TemplateID: "d", Type: models.WorkoutAgility},
	}

	profiles := make([]*templateProfile, len(vectors))
	for i, v := range vectors {
		profiles[i] = newTemplateProfile(v, n)
	}

	for i := range profiles {
		for j := range profiles {
			ab, _ := templateSimilarity(profiles[i], profiles[j])
			ba, _ := templateSimilarity(profiles[j], profiles[i])
			assert.InDelta(t, ab, ba, 1e-12, "%s/%s", profiles[i].id, profiles[j].id)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
		}
	}

	identical, factors := templateSimilarity(profiles[0], profiles[1])
	assert.InDelta(t, 1.0, identical, 1e-9)
	assert.Equal(t, 1.0, factors.Type)
	assert.InDelta(t, 1.0, factors.Keywords, 1e-9)

	unrelated, factors := templateSimilarity(profiles[0], profiles[2])
	assert.Equal(t, 0.0, factors.Type)
	assert.InDelta(t, 0.5, factors.Equipment, 1e-9)
	assert.InDelta(t, 0.5, factors.Duration, 1e-9)
	assert.Less(t, unrelated, identical)
}

func TestSimilarityEngine_UserSimilarity(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Two coaches rate the same three templates identically.
	for _, user := range []string{"u1", "u2"} {
		for id, r := range map[string]float64{"t1": 9, "t2": 5, "t3": 2} {
			_, err := e.interactions.RecordInteraction(ctx, user, id, models.InteractionRated, rating(r))
			require.NoError(t, err)
		}
	}
	for id, r := range map[string]float64{"t1": 2, "t2": 6, "t3": 9} {
		_, err := e.interactions.RecordInteraction(ctx, "u3", id, models.InteractionRated, rating(r))
		require.NoError(t, err)
	}

	assert.InDelta(t, 1.0, e.similarity.UserSimilarity(ctx, "u1", "u2"), 1e-9)
	assert.InDelta(t, 1.0, e.similarity.UserSimilarity(ctx, "u2", "u1"), 1e-9)
	assert.InDelta(t, -1.0, e.similarity.UserSimilarity(ctx, "u1", "u3"), 1e-9)
	assert.Equal(t, 0.0, e.similarity.UserSimilarity(ctx, "u1", "nobody"))

	neighbors := e.similarity.UserNeighbors(ctx, "u1", 10)
	require.Len(t, neighbors, 1, "negatively correlated users are not neighbours")
	assert.Equal(t, "u2", neighbors[0].UserB)
	assert.Equal(t, 3, neighbors[0].CommonRatings)
}

func TestSimilarityEngine_IncrementalUserRebuild(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		for id, r := range map[string]float64{"t1": 9, "t2": 5, "t3": 2} {
			_, err := e.interactions.RecordInteraction(ctx, user, id, models.InteractionRated, rating(r))
			require.NoError(t, err)
		}
	}
	require.InDelta(t, 1.0, e.similarity.UserSimilarity(ctx, "u1", "u2"), 1e-9)

	_, err := e.interactions.RecordInteraction(ctx, "u1", "t3", models.InteractionRated, rating(9))
	require.NoError(t, err)

	updated := e.similarity.UserSimilarity(ctx, "u1", "u2")
	assert.Less(t, updated, 0.99)
	assert.InDelta(t, updated, e.similarity.UserSimilarity(ctx, "u2", "u1"), 1e-12, "mirror row must follow")
}

func TestSimilarityEngine_TemplateMatrix(t *testing.T) {
	e := newTestEngine(t,
		newTemplate("t1", models.WorkoutStrength, models.LevelIntermediate, 30, "pucks"),
		newTemplate("t2", models.WorkoutStrength, models.LevelIntermediate, 30, "pucks"),
		newTemplate("t3", models.WorkoutRecovery, models.LevelBeginner, 90),
	)
	ctx := context.Background()

	sim := e.similarity.TemplateSimilarity(ctx, "t1", "t2")
	assert.InDelta(t, 0.70, sim, 1e-9, "no categories or keywords to share")
	assert.Equal(t, sim, e.similarity.TemplateSimilarity(ctx, "t2", "t1"))

	edges, err := e.similarity.SimilarTemplates(ctx, "t1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, edges)
	assert.Equal(t, "t2", edges[0].TemplateB)
	assert.Equal(t, 1.0, edges[0].Factors.Type)
	for i := 1; i < len(edges); i++ {
		assert.GreaterOrEqual(t, edges[i-1].Score, edges[i].Score)
	}

	_, err = e.similarity.SimilarTemplates(ctx, "missing", 10)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	neighbors := e.similarity.TemplateNeighbors(ctx, "t1", 0.5)
	assert.Contains(t, neighbors, "t2")
	assert.NotContains(t, neighbors, "t3")

	// A catalog refresh is picked up on the next read.
	e.catalog.Replace([]models.TemplateFeatureVector{
		newTemplate("t1", models.WorkoutStrength, models.LevelIntermediate, 30, "pucks"),
		newTemplate("t2", models.WorkoutAgility, models.LevelElite, 30, "cones"),
	})
	e.similarity.InvalidateAll()
	assert.Less(t, e.similarity.TemplateSimilarity(ctx, "t1", "t2"), sim)

	stats := e.similarity.Stats()
	assert.Equal(t, 2, stats.Templates)
	assert.Equal(t, e.catalog.Version(), stats.CatalogVersion)
}

func TestSimilarityEngine_RestoreAndMatrices(t *testing.T) {
	e := newTestEngine(t,
		newTemplate("t1", models.WorkoutStrength, models.LevelIntermediate, 30),
		newTemplate("t2", models.WorkoutStrength, models.LevelIntermediate, 30),
	)
	ctx := context.Background()

	e.similarity.Restore(
		map[string]map[string]float64{"t1": {"t2": 0.42}, "t2": {"t1": 0.42}},
		map[string]map[string]float64{"u1": {"u2": 0.8}, "u2": {"u1": 0.8}},
	)

	assert.InDelta(t, 0.42, e.similarity.TemplateSimilarity(ctx, "t1", "t2"), 1e-9, "restored matrix is current")
	assert.InDelta(t, 0.8, e.similarity.UserSimilarity(ctx, "u1", "u2"), 1e-9)

	templates, users := e.similarity.Matrices()
	assert.InDelta(t, 0.42, templates["t1"]["t2"], 1e-9)
	assert.InDelta(t, 0.8, users["u2"]["u1"], 1e-9)

	edges := e.similarity.TemplateEdges(0.3)
	require.Len(t, edges, 1)
	assert.Equal(t, "t1", edges[0].TemplateA)
	assert.Equal(t, "t2", edges[0].TemplateB)
	assert.Empty(t, e.similarity.TemplateEdges(0.5))
}

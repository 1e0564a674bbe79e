package services

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/temcen/drillsense/pkg/models"
)

// Template similarity component weights. They sum to 1.
const (
	typeWeight       = 0.25
	difficultyWeight = 0.15
	equipmentWeight  = 0.20
	categoryWeight   = 0.15
	durationWeight   = 0.10
	keywordWeight    = 0.15
)

// templateProfile is the normalized form of a feature vector used for pairwise scoring.
type templateProfile struct {
	id         string
	kind       models.WorkoutType
	difficulty models.SkillLevel
	equipment  map[string]struct{}
	categories map[string]struct{}
	duration   int
	terms      map[string]float64
}

func newTemplateProfile(v models.TemplateFeatureVector, n *TextNormalizer) *templateProfile {
	return &templateProfile{
		id:         v.TemplateID,
		kind:       v.Type,
		difficulty: v.Difficulty,
		equipment:  n.NameSet(v.Equipment),
		categories: n.NameSet(v.Categories),
		duration:   v.Duration,
		terms:      n.TermFrequencies(v.Keywords),
	}
}

// templateSimilarity scores two profiles. The result is symmetric in its arguments.
func templateSimilarity(a, b *templateProfile) (float64, models.SimilarityFactors) {
	f := models.SimilarityFactors{
		Type:       binaryMatch(a.kind == b.kind),
		Difficulty: binaryMatch(a.difficulty == b.difficulty),
		Equipment:  jaccard(a.equipment, b.equipment),
		Category:   jaccard(a.categories, b.categories),
		Duration:   durationCloseness(a.duration, b.duration),
		Keywords:   termCosine(a.terms, b.terms),
	}

	score := f.Type*typeWeight +
		f.Difficulty*difficultyWeight +
		f.Equipment*equipmentWeight +
		f.Category*categoryWeight +
		f.Duration*durationWeight +
		f.Keywords*keywordWeight

	return models.Clamp(score, 0, 1), f
}

func binaryMatch(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// jaccard is |a∩b| / |a∪b|; two empty sets score 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// durationCloseness is 1 − |d1−d2| / max(d1,d2), 0 when both durations are unknown.
func durationCloseness(d1, d2 int) float64 {
	longest := math.Max(float64(d1), float64(d2))
	if longest <= 0 {
		return 0
	}
	return models.Clamp(1-math.Abs(float64(d1-d2))/longest, 0, 1)
}

// termCosine compares raw term-frequency vectors over the union vocabulary of
// both bags. There is no inverse document weighting.
func termCosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	vocab := make([]string, 0, len(a)+len(b))
	for t := range a {
		vocab = append(vocab, t)
	}
	for t := range b {
		if _, ok := a[t]; !ok {
			vocab = append(vocab, t)
		}
	}
	sort.Strings(vocab)

	va := make([]float64, len(vocab))
	vb := make([]float64, len(vocab))
	for i, t := range vocab {
		va[i] = a[t]
		vb[i] = b[t]
	}

	denom := floats.Norm(va, 2) * floats.Norm(vb, 2)
	if denom == 0 {
		return 0
	}
	return models.Clamp(floats.Dot(va, vb)/denom, 0, 1)
}

// pearson correlates two users over the templates both have scored. It returns
// the coefficient and the number of co-scored templates; fewer than two common
// templates or zero variance yields 0.
func pearson(a, b map[string]float64) (float64, int) {
	common := make([]string, 0)
	for id := range a {
		if _, ok := b[id]; ok {
			common = append(common, id)
		}
	}
	if len(common) < 2 {
		return 0, len(common)
	}
	sort.Strings(common)

	x := make([]float64, len(common))
	y := make([]float64, len(common))
	for i, id := range common {
		x[i] = a[id]
		y[i] = b[id]
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, len(common)
	}
	return models.Clamp(r, -1, 1), len(common)
}

package services

import (
	"fmt"
	"strings"

	"github.com/temcen/drillsense/pkg/models"
)

// Filter outcomes, also used as metrics labels and in result metadata.
const (
	filterMedical   = "medical_restriction"
	filterEquipment = "equipment_available"
	filterDuration  = "duration_limit"
	filterLevel     = "player_level_gap"
)

// HardFilter enforces the caller's non-negotiable constraints on a template.
type HardFilter struct {
	normalizer    *TextNormalizer
	timeTolerance float64
	maxLevelGap   int
}

func NewHardFilter(normalizer *TextNormalizer, timeTolerance float64, maxLevelGap int) *HardFilter {
	if timeTolerance <= 0 {
		timeTolerance = 1.2
	}
	if maxLevelGap < 0 {
		maxLevelGap = 1
	}
	return &HardFilter{
		normalizer:    normalizer,
		timeTolerance: timeTolerance,
		maxLevelGap:   maxLevelGap,
	}
}

// Check returns "" when v passes every filter, otherwise the failing filter name.
func (f *HardFilter) Check(v models.TemplateFeatureVector, rc *models.RecommendationContext) string {
	if f.restricted(v, rc.MedicalRestrictions) {
		return filterMedical
	}
	if !f.EquipmentAvailable(v, rc.AvailableEquipment) {
		return filterEquipment
	}
	if !f.WithinTime(v, rc.AvailableTime) {
		return filterDuration
	}
	if !f.levelCompatible(v.Difficulty, rc.PlayerLevel) {
		return filterLevel
	}
	return ""
}

// EquipmentAvailable requires every template equipment item to be in available.
// A template with no equipment always passes.
func (f *HardFilter) EquipmentAvailable(v models.TemplateFeatureVector, available []string) bool {
	have := f.normalizer.NameSet(available)
	for item := range f.normalizer.NameSet(v.Equipment) {
		if _, ok := have[item]; !ok {
			return false
		}
	}
	return true
}

// WithinTime allows templates up to availableTime × tolerance. Zero available
// time means the caller did not constrain duration.
func (f *HardFilter) WithinTime(v models.TemplateFeatureVector, availableTime int) bool {
	if availableTime <= 0 {
		return true
	}
	return float64(v.Duration) <= float64(availableTime)*f.timeTolerance
}

// restricted reports whether a restriction occurs in an equipment name
// (case-insensitive). Only that direction matches: a short item such as
// "bar" must not trip on unrelated restriction text.
func (f *HardFilter) restricted(v models.TemplateFeatureVector, restrictions []string) bool {
	if len(restrictions) == 0 {
		return false
	}
	equipment := f.normalizer.NameSet(v.Equipment)
	for _, raw := range restrictions {
		r := f.normalizer.Name(raw)
		if r == "" {
			continue
		}
		for item := range equipment {
			if strings.Contains(item, r) {
				return true
			}
		}
	}
	return false
}

func (f *HardFilter) levelCompatible(difficulty, player models.SkillLevel) bool {
	p, d := player.Ordinal(), difficulty.Ordinal()
	if p < 0 || d < 0 {
		return true
	}
	gap := p - d
	if gap < 0 {
		gap = -gap
	}
	return gap <= f.maxLevelGap
}

// Criteria describes the filters active for rc, for result metadata.
func (f *HardFilter) Criteria(rc *models.RecommendationContext) []string {
	criteria := []string{fmt.Sprintf("%s:%d", filterEquipment, len(rc.AvailableEquipment))}
	if len(rc.MedicalRestrictions) > 0 {
		criteria = append(criteria, fmt.Sprintf("%s:%d", filterMedical, len(rc.MedicalRestrictions)))
	}
	if rc.AvailableTime > 0 {
		criteria = append(criteria, fmt.Sprintf("%s:%.0f", filterDuration, float64(rc.AvailableTime)*f.timeTolerance))
	}
	if rc.PlayerLevel.Ordinal() >= 0 {
		criteria = append(criteria, fmt.Sprintf("%s:%d", filterLevel, f.maxLevelGap))
	}
	return criteria
}

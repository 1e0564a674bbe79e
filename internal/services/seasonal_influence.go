package services

import "github.com/temcen/drillsense/pkg/models"

const defaultSeasonalInfluence = 0.5

// seasonalInfluence is how well a workout type suits each part of the hockey
// calendar, in [0,1].
var seasonalInfluence = map[models.WorkoutType]map[models.Season]float64{
	models.WorkoutStrength: {
		models.SeasonOffseason: 0.9, models.SeasonPreseason: 0.7, models.SeasonInseason: 0.5, models.SeasonPlayoffs: 0.3,
	},
	models.WorkoutConditioning: {
		models.SeasonOffseason: 0.6, models.SeasonPreseason: 0.9, models.SeasonInseason: 0.6, models.SeasonPlayoffs: 0.4,
	},
	models.WorkoutAgility: {
		models.SeasonOffseason: 0.6, models.SeasonPreseason: 0.8, models.SeasonInseason: 0.7, models.SeasonPlayoffs: 0.5,
	},
	models.WorkoutSkill: {
		models.SeasonOffseason: 0.5, models.SeasonPreseason: 0.7, models.SeasonInseason: 0.8, models.SeasonPlayoffs: 0.7,
	},
	models.WorkoutHybrid: {
		models.SeasonOffseason: 0.7, models.SeasonPreseason: 0.8, models.SeasonInseason: 0.6, models.SeasonPlayoffs: 0.4,
	},
	models.WorkoutRecovery: {
		models.SeasonOffseason: 0.4, models.SeasonPreseason: 0.5, models.SeasonInseason: 0.8, models.SeasonPlayoffs: 0.9,
	},
	models.WorkoutFlexibility: {
		models.SeasonOffseason: 0.5, models.SeasonPreseason: 0.6, models.SeasonInseason: 0.7, models.SeasonPlayoffs: 0.8,
	},
}

// SeasonalInfluence looks up the type × season influence, 0.5 when unknown.
func SeasonalInfluence(t models.WorkoutType, s models.Season) float64 {
	if bySeason, ok := seasonalInfluence[t]; ok {
		if v, ok := bySeason[s]; ok {
			return v
		}
	}
	return defaultSeasonalInfluence
}

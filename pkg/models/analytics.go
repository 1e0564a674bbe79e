package models

import "time"

// ModificationPattern aggregates how often a modification kind was applied.
type ModificationPattern struct {
	Kind      ModificationKind `json:"kind"`
	Count     int              `json:"count"`
	Frequency Score01          `json:"frequency"`
}

// PerformanceTrend is the movement of one metric across a trailing window.
type PerformanceTrend struct {
	Metric        string         `json:"metric"`
	WindowDays    int            `json:"window_days"`
	ChangePercent float64        `json:"change_percent"`
	Direction     TrendDirection `json:"direction"`
	SampleSize    int            `json:"sample_size"`
}

// SeasonalUsage is the share of usage per season bucket.
type SeasonalUsage struct {
	Ratios      map[Season]float64 `json:"ratios"`
	PeakMonth   string             `json:"peak_month,omitempty"`
	LowestMonth string             `json:"lowest_month,omitempty"`
}

// PlayerFeedback summarises satisfaction ratings.
type PlayerFeedback struct {
	AverageSatisfaction Rating010 `json:"average_satisfaction"`
	Responses           int       `json:"responses"`
	PositiveRatio       float64   `json:"positive_ratio"`
	NegativeRatio       float64   `json:"negative_ratio"`
	Sentiment           Sentiment `json:"sentiment"`
}

// TemplateAnalyticsSnapshot is the computed analytics view of one template.
type TemplateAnalyticsSnapshot struct {
	TemplateID            string                `json:"template_id"`
	TotalUsage            int                   `json:"total_usage"`
	UniqueUsers           int                   `json:"unique_users"`
	AverageRating         Rating010             `json:"average_rating"`
	CompletionRate        Score01               `json:"completion_rate"`
	EffectivenessScore    float64               `json:"effectiveness_score"`
	PopularityScore       float64               `json:"popularity_score"`
	ModificationFrequency Score01               `json:"modification_frequency"`
	CommonModifications   []ModificationPattern `json:"common_modifications"`
	PerformanceTrends     []PerformanceTrend    `json:"performance_trends"`
	SeasonalUsage         SeasonalUsage         `json:"seasonal_usage"`
	PlayerFeedback        PlayerFeedback        `json:"player_feedback"`
	LastUsed              *time.Time            `json:"last_used,omitempty"`
	LastUpdated           time.Time             `json:"last_updated"`
}

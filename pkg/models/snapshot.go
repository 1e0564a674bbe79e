package models

import "time"

// SnapshotSchemaVersion is bumped whenever EngineSnapshot changes shape.
const SnapshotSchemaVersion = 1

// EngineSnapshot is the durable warm-start state of the engine.
type EngineSnapshot struct {
	SchemaVersion      int                           `json:"schema_version"`
	SavedAt            time.Time                     `json:"saved_at"`
	Interactions       map[string]map[string]float64 `json:"interactions"`
	TemplateSimilarity map[string]map[string]float64 `json:"template_similarity"`
	UserSimilarity     map[string]map[string]float64 `json:"user_similarity"`
	Features           []TemplateFeatureVector       `json:"features"`
	UsageEvents        []UsageEvent                  `json:"usage_events"`
	PerformanceRecords []PerformanceRecord           `json:"performance_records"`
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Modification is a change a coach applied to a template in a session.
type Modification struct {
	Kind        ModificationKind `json:"kind" validate:"required"`
	Description string           `json:"description,omitempty"`
}

// UsageEvent is appended each time a template is used in a session.
type UsageEvent struct {
	EventID       uuid.UUID      `json:"event_id"`
	TemplateID    string         `json:"template_id" validate:"required"`
	UserID        string         `json:"user_id" validate:"required"`
	TeamID        *string        `json:"team_id,omitempty"`
	SessionID     string         `json:"session_id" validate:"required"`
	Timestamp     time.Time      `json:"timestamp"`
	SessionType   SessionType    `json:"session_type" validate:"required"`
	Modifications []Modification `json:"modifications,omitempty" validate:"dive"`
}

// PlayerMetrics are one player's numbers for a recorded session.
type PlayerMetrics struct {
	PlayerID       string     `json:"player_id" validate:"required"`
	CompletionRate Score01    `json:"completion_rate" validate:"gte=0,lte=1"`
	Intensity      float64    `json:"intensity,omitempty"`
	HeartRateAvg   *float64   `json:"heart_rate_avg,omitempty"`
	Satisfaction   *Rating010 `json:"satisfaction,omitempty" validate:"omitempty,gte=1,lte=10"`
}

// PerformanceRecord captures how a session based on a template went.
type PerformanceRecord struct {
	EventID          uuid.UUID       `json:"event_id"`
	TemplateID       string          `json:"template_id" validate:"required"`
	SessionID        string          `json:"session_id" validate:"required"`
	PlayerMetrics    []PlayerMetrics `json:"player_metrics,omitempty" validate:"dive"`
	CompletionRate   Score01         `json:"completion_rate" validate:"gte=0,lte=1"`
	AverageIntensity float64         `json:"average_intensity"`
	Satisfaction     *Rating010      `json:"satisfaction,omitempty" validate:"omitempty,gte=1,lte=10"`
	InjuryIncidents  int             `json:"injury_incidents" validate:"gte=0"`
	Modifications    []Modification  `json:"modifications,omitempty" validate:"dive"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Tracking event types carried on the ingest stream.
const (
	TrackingUsage       = "usage"
	TrackingPerformance = "performance"
	TrackingInteraction = "interaction"
)

// TrackingEvent is the envelope published by session-tracking producers.
// Payload is decoded according to Type.
type TrackingEvent struct {
	Type       string          `json:"type"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

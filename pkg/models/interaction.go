package models

import "time"

// InteractionRecord is the latest score for a (user, template) pair.
type InteractionRecord struct {
	UserID     string    `json:"user_id"`
	TemplateID string    `json:"template_id"`
	Score      float64   `json:"score"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// InteractionRequest is the API payload for a tracked interaction.
type InteractionRequest struct {
	UserID     string          `json:"user_id" validate:"required"`
	TemplateID string          `json:"template_id" validate:"required"`
	Kind       InteractionKind `json:"kind" validate:"required"`
	Rating     *Rating010      `json:"rating,omitempty" validate:"omitempty,gte=0,lte=10"`
}

package services

import (
	"errors"

	"github.com/temcen/drillsense/internal/database"
)

var (
	// ErrTemplateNotFound is returned when a template id has no feature vector or analytics.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrNoSnapshot is returned by gateways that hold no persisted state yet.
	ErrNoSnapshot = database.ErrNoSnapshot
	// ErrInvalidEvent is returned for events missing their identifying fields.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidRequest is returned for recommendation requests the engine cannot serve.
	ErrInvalidRequest = errors.New("invalid recommendation request")
)

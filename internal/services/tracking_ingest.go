package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/validation"
	"github.com/temcen/drillsense/pkg/models"
)

// TrackingIngestService decodes tracking envelopes from the event stream and
// routes them to the interaction store or the analytics engine.
type TrackingIngestService struct {
	interactions InteractionRecorderInterface
	analytics    AnalyticsServiceInterface
	schemas      *validation.SchemaValidator
	validate     *validator.Validate
	metrics      *MetricsCollector
	logger       *logrus.Logger
}

func NewTrackingIngestService(
	interactions InteractionRecorderInterface,
	analytics AnalyticsServiceInterface,
	schemas *validation.SchemaValidator,
	metrics *MetricsCollector,
	logger *logrus.Logger,
) *TrackingIngestService {
	return &TrackingIngestService{
		interactions: interactions,
		analytics:    analytics,
		schemas:      schemas,
		validate:     validator.New(),
		metrics:      metrics,
		logger:       logger,
	}
}

// Ingest validates a raw envelope and dispatches it. Malformed input is
// reported as ErrInvalidEvent so callers can skip retries.
func (s *TrackingIngestService) Ingest(ctx context.Context, raw []byte) error {
	if s.schemas != nil {
		if err := s.schemas.ValidateTrackingEvent(raw).Err(); err != nil {
			s.metrics.RecordIngest("unknown", "invalid")
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	}

	var event models.TrackingEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.metrics.RecordIngest("unknown", "invalid")
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	return s.Dispatch(ctx, event)
}

// Dispatch routes a decoded envelope by type.
func (s *TrackingIngestService) Dispatch(ctx context.Context, event models.TrackingEvent) error {
	var err error
	switch event.Type {
	case models.TrackingUsage:
		err = s.dispatchUsage(ctx, event)
	case models.TrackingPerformance:
		err = s.dispatchPerformance(ctx, event)
	case models.TrackingInteraction:
		err = s.dispatchInteraction(ctx, event)
	default:
		err = fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, event.Type)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		s.logger.WithError(err).WithField("event_type", event.Type).Warn("Failed to ingest tracking event")
	}
	s.metrics.RecordIngest(event.Type, outcome)
	return err
}

func (s *TrackingIngestService) dispatchUsage(ctx context.Context, event models.TrackingEvent) error {
	var usage models.UsageEvent
	if err := s.decode(event.Payload, &usage); err != nil {
		return err
	}
	if usage.Timestamp.IsZero() && event.OccurredAt != nil {
		usage.Timestamp = *event.OccurredAt
	}
	_, err := s.analytics.TrackUsage(ctx, usage)
	return err
}

func (s *TrackingIngestService) dispatchPerformance(ctx context.Context, event models.TrackingEvent) error {
	var record models.PerformanceRecord
	if err := s.decode(event.Payload, &record); err != nil {
		return err
	}
	if record.Timestamp.IsZero() && event.OccurredAt != nil {
		record.Timestamp = *event.OccurredAt
	}
	_, err := s.analytics.RecordPerformance(ctx, record)
	return err
}

func (s *TrackingIngestService) dispatchInteraction(ctx context.Context, event models.TrackingEvent) error {
	var req models.InteractionRequest
	if err := s.decode(event.Payload, &req); err != nil {
		return err
	}
	_, err := s.interactions.RecordInteraction(ctx, req.UserID, req.TemplateID, req.Kind, req.Rating)
	return err
}

func (s *TrackingIngestService) decode(payload json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

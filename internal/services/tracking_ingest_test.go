package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/drillsense/internal/validation"
	"github.com/temcen/drillsense/pkg/models"
)

func newTestIngest(t *testing.T) (*TrackingIngestService, *testEngine) {
	t.Helper()
	schemas, err := validation.NewDefaultSchemaValidator()
	require.NoError(t, err)

	e := newTestEngine(t)
	return NewTrackingIngestService(e.interactions, e.analytics, schemas, e.metrics, newTestLogger()), e
}

func TestTrackingIngest_Ingest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, e *testEngine)
	}{
		{
			name: "usage event",
			raw: `{"type":"usage","payload":{"template_id":"t1","user_id":"u1","session_id":"s1",` +
				`"session_type":"practice","modifications":[{"kind":"rest_change"}]}}`,
			check: func(t *testing.T, e *testEngine) {
				assert.Equal(t, []string{"t1"}, e.analytics.TrackedTemplates())
			},
		},
		{
			name: "performance event",
			raw: `{"type":"performance","payload":{"template_id":"t2","session_id":"s1",` +
				`"completion_rate":0.8,"satisfaction":7,"injury_incidents":0}}`,
			check: func(t *testing.T, e *testEngine) {
				snap, err := e.analytics.Snapshot(context.Background(), "t2")
				require.NoError(t, err)
				assert.InDelta(t, 0.8, float64(snap.CompletionRate), 1e-9)
			},
		},
		{
			name: "interaction event",
			raw:  `{"type":"interaction","payload":{"user_id":"u1","template_id":"t1","kind":"completed"}}`,
			check: func(t *testing.T, e *testEngine) {
				score, ok := e.interactions.Score("u1", "t1")
				assert.True(t, ok)
				assert.InDelta(t, 0.7, score, 1e-9)
			},
		},
		{name: "unknown type", raw: `{"type":"heartbeat","payload":{}}`, wantErr: true},
		{name: "missing payload", raw: `{"type":"usage"}`, wantErr: true},
		{name: "not json", raw: `{"type":`, wantErr: true},
		{
			name:    "unknown session type",
			raw:     `{"type":"usage","payload":{"template_id":"t1","user_id":"u1","session_id":"s1","session_type":"scrimmage"}}`,
			wantErr: true,
		},
		{
			name:    "usage without session type",
			raw:     `{"type":"usage","payload":{"template_id":"t1","user_id":"u1","session_id":"s1"}}`,
			wantErr: true,
		},
		{
			name:    "satisfaction out of range",
			raw:     `{"type":"performance","payload":{"template_id":"t2","session_id":"s1","completion_rate":0.5,"satisfaction":12}}`,
			wantErr: true,
		},
		{
			name:    "rated interaction without rating",
			raw:     `{"type":"interaction","payload":{"user_id":"u1","template_id":"t1","kind":"rated"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingest, e := newTestIngest(t)

			err := ingest.Ingest(context.Background(), []byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				assert.Empty(t, e.analytics.TrackedTemplates())
				assert.Empty(t, e.interactions.Users())
				return
			}
			require.NoError(t, err)
			tt.check(t, e)
		})
	}
}

func TestTrackingIngest_DispatchUsesEnvelopeTime(t *testing.T) {
	ingest, e := newTestIngest(t)

	occurred := time.Date(2026, time.October, 3, 18, 30, 0, 0, time.UTC)
	payload, err := json.Marshal(models.UsageEvent{
		TemplateID:  "t1",
		UserID:      "u1",
		SessionID:   "s1",
		SessionType: models.SessionGamePrep,
	})
	require.NoError(t, err)

	err = ingest.Dispatch(context.Background(), models.TrackingEvent{
		Type:       models.TrackingUsage,
		OccurredAt: &occurred,
		Payload:    payload,
	})
	require.NoError(t, err)

	usageLog, _ := e.analytics.Events()
	require.Len(t, usageLog, 1)
	assert.True(t, occurred.Equal(usageLog[0].Timestamp))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.eventsIngested.WithLabelValues(models.TrackingUsage, "success")))
}

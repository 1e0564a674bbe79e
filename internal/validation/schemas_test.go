package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultSchemaValidator(t *testing.T) {
	sv, err := NewDefaultSchemaValidator()
	require.NoError(t, err)

	assert.Equal(t,
		[]string{EngineSnapshotSchema, TemplateCatalogSchema, TrackingEventSchema},
		sv.Names())
	assert.True(t, sv.Has(TemplateCatalogSchema))
	assert.False(t, sv.Has("content-item"))
}

func TestValidateCatalog(t *testing.T) {
	sv, err := NewDefaultSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{
			name:  "valid catalog",
			doc:   `[{"template_id":"t1","type":"STRENGTH","difficulty":"intermediate","duration":30,"equipment":["pucks"]}]`,
			valid: true,
		},
		{
			name:  "empty catalog",
			doc:   `[]`,
			valid: true,
		},
		{
			name:  "missing template id",
			doc:   `[{"type":"STRENGTH","difficulty":"beginner"}]`,
			valid: false,
		},
		{
			name:  "unknown workout type",
			doc:   `[{"template_id":"t1","type":"CARDIO","difficulty":"beginner"}]`,
			valid: false,
		},
		{
			name:  "intensity out of range",
			doc:   `[{"template_id":"t1","type":"SKILL","difficulty":"elite","intensity_score":1.5}]`,
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sv.ValidateCatalog(tt.doc)
			assert.Equal(t, tt.valid, result.Valid, "errors: %v", result.Errors)
			if tt.valid {
				assert.NoError(t, result.Err())
			} else {
				require.Error(t, result.Err())
				assert.Equal(t, CodeViolation, result.Errors[0].Code)
			}
		})
	}
}

func TestValidateSnapshot(t *testing.T) {
	sv, err := NewDefaultSchemaValidator()
	require.NoError(t, err)

	valid := `{
		"schema_version": 1,
		"saved_at": "2026-01-01T00:00:00Z",
		"interactions": {"u1": {"t1": 0.7}},
		"template_similarity": {},
		"user_similarity": null,
		"features": []
	}`
	assert.True(t, sv.ValidateSnapshot(valid).Valid)

	invalid := `{"schema_version": 0, "saved_at": "x", "interactions": {"u1": {"t1": "high"}},
		"template_similarity": {}, "user_similarity": {}, "features": []}`
	assert.False(t, sv.ValidateSnapshot(invalid).Valid)
}

func TestValidateTrackingEvent(t *testing.T) {
	sv, err := NewDefaultSchemaValidator()
	require.NoError(t, err)

	assert.True(t, sv.ValidateTrackingEvent(`{"type":"usage","payload":{}}`).Valid)
	assert.False(t, sv.ValidateTrackingEvent(`{"type":"unknown","payload":{}}`).Valid)
	assert.False(t, sv.ValidateTrackingEvent(`{"type":"usage"}`).Valid)
}

func TestValidateUnknownSchema(t *testing.T) {
	sv := NewSchemaValidator()
	result := sv.ValidateCatalog(`[]`)
	require.False(t, result.Valid)
	assert.Equal(t, CodeSchemaNotFound, result.Errors[0].Code)
}

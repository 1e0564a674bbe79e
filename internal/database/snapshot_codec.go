package database

import (
	"encoding/json"
	"fmt"

	"github.com/temcen/drillsense/internal/validation"
	"github.com/temcen/drillsense/pkg/models"
)

// SnapshotCodec serialises engine snapshots as versioned JSON and validates
// payloads against the snapshot schema on the way back in.
type SnapshotCodec struct {
	validator *validation.SchemaValidator
}

func NewSnapshotCodec(validator *validation.SchemaValidator) *SnapshotCodec {
	return &SnapshotCodec{validator: validator}
}

func (c *SnapshotCodec) Encode(snapshot *models.EngineSnapshot) ([]byte, error) {
	if snapshot.SchemaVersion == 0 {
		snapshot.SchemaVersion = models.SnapshotSchemaVersion
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func (c *SnapshotCodec) Decode(data []byte) (*models.EngineSnapshot, error) {
	if c.validator != nil {
		if err := c.validator.ValidateSnapshot(data).Err(); err != nil {
			return nil, fmt.Errorf("snapshot failed schema validation: %w", err)
		}
	}

	var snapshot models.EngineSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snapshot.SchemaVersion > models.SnapshotSchemaVersion {
		return nil, fmt.Errorf("snapshot schema version %d is newer than supported %d",
			snapshot.SchemaVersion, models.SnapshotSchemaVersion)
	}
	return &snapshot, nil
}

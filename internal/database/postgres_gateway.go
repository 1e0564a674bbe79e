package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/temcen/drillsense/pkg/models"
)

const defaultSnapshotID = "default"

// PgxIface is the subset of pgxpool.Pool used by the gateway, so tests can
// substitute pgxmock.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresGateway stores snapshots as JSONB rows keyed by snapshot id.
type PostgresGateway struct {
	db         PgxIface
	codec      *SnapshotCodec
	snapshotID string
}

func NewPostgresGateway(db PgxIface, codec *SnapshotCodec) *PostgresGateway {
	return &PostgresGateway{db: db, codec: codec, snapshotID: defaultSnapshotID}
}

// EnsureSchema creates the snapshot table when missing.
func (g *PostgresGateway) EnsureSchema(ctx context.Context) error {
	_, err := g.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			payload JSONB NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create engine_snapshots table: %w", err)
	}
	return nil
}

func (g *PostgresGateway) Load(ctx context.Context) (*models.EngineSnapshot, error) {
	var payload []byte
	err := g.db.QueryRow(ctx,
		`SELECT payload FROM engine_snapshots WHERE id = $1`, g.snapshotID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return g.codec.Decode(payload)
}

func (g *PostgresGateway) Save(ctx context.Context, snapshot *models.EngineSnapshot) error {
	payload, err := g.codec.Encode(snapshot)
	if err != nil {
		return err
	}
	savedAt := snapshot.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = g.db.Exec(ctx, `
		INSERT INTO engine_snapshots (id, schema_version, payload, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET schema_version = EXCLUDED.schema_version,
			payload = EXCLUDED.payload,
			saved_at = EXCLUDED.saved_at`,
		g.snapshotID, snapshot.SchemaVersion, payload, savedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

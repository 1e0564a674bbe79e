package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/temcen/drillsense/pkg/models"
)

const badgerSnapshotKey = "engine:snapshot:latest"

// BadgerGateway stores the snapshot in an embedded BadgerDB directory.
type BadgerGateway struct {
	db    *badger.DB
	codec *SnapshotCodec
}

// OpenBadgerGateway opens (or creates) the store at path.
func OpenBadgerGateway(path string, codec *SnapshotCodec) (*BadgerGateway, error) {
	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return NewBadgerGateway(db, codec), nil
}

// NewBadgerGateway wraps an already open database.
func NewBadgerGateway(db *badger.DB, codec *SnapshotCodec) *BadgerGateway {
	return &BadgerGateway{db: db, codec: codec}
}

func (g *BadgerGateway) Load(ctx context.Context) (*models.EngineSnapshot, error) {
	var data []byte
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerSnapshotKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return g.codec.Decode(data)
}

func (g *BadgerGateway) Save(ctx context.Context, snapshot *models.EngineSnapshot) error {
	data, err := g.codec.Encode(snapshot)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerSnapshotKey), data)
	})
}

func (g *BadgerGateway) Close() error {
	return g.db.Close()
}

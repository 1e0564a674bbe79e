package database

import (
	"context"
	"sync"

	"github.com/temcen/drillsense/pkg/models"
)

// MemoryGateway keeps the encoded snapshot in process memory. It is used in
// tests and when no durable store is configured.
type MemoryGateway struct {
	mu    sync.RWMutex
	data  []byte
	codec *SnapshotCodec
}

func NewMemoryGateway(codec *SnapshotCodec) *MemoryGateway {
	return &MemoryGateway{codec: codec}
}

func (g *MemoryGateway) Load(ctx context.Context) (*models.EngineSnapshot, error) {
	g.mu.RLock()
	data := g.data
	g.mu.RUnlock()
	if data == nil {
		return nil, ErrNoSnapshot
	}
	return g.codec.Decode(data)
}

func (g *MemoryGateway) Save(ctx context.Context, snapshot *models.EngineSnapshot) error {
	data, err := g.codec.Encode(snapshot)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.data = data
	g.mu.Unlock()
	return nil
}

package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/temcen/drillsense/pkg/models"
)

// RedisGateway stores the encoded snapshot under a single key.
type RedisGateway struct {
	client *redis.Client
	key    string
	codec  *SnapshotCodec
}

func NewRedisGateway(client *redis.Client, key string, codec *SnapshotCodec) *RedisGateway {
	return &RedisGateway{client: client, key: key, codec: codec}
}

func (g *RedisGateway) Load(ctx context.Context) (*models.EngineSnapshot, error) {
	data, err := g.client.Get(ctx, g.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from redis: %w", err)
	}
	return g.codec.Decode(data)
}

func (g *RedisGateway) Save(ctx context.Context, snapshot *models.EngineSnapshot) error {
	data, err := g.codec.Encode(snapshot)
	if err != nil {
		return err
	}
	if err := g.client.Set(ctx, g.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to redis: %w", err)
	}
	return nil
}

// RedisAnalyticsPublisher writes analytics snapshots to analytics:<templateId>
// keys for external dashboards.
type RedisAnalyticsPublisher struct {
	client *redis.Client
}

func NewRedisAnalyticsPublisher(client *redis.Client) *RedisAnalyticsPublisher {
	return &RedisAnalyticsPublisher{client: client}
}

func AnalyticsKey(templateID string) string {
	return "analytics:" + templateID
}

func (p *RedisAnalyticsPublisher) PublishSnapshot(ctx context.Context, snapshot *models.TemplateAnalyticsSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode analytics snapshot: %w", err)
	}
	return p.client.Set(ctx, AnalyticsKey(snapshot.TemplateID), data, ttl).Err()
}

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/config"
)

// ErrNoSnapshot is returned by gateways that hold no persisted state yet.
var ErrNoSnapshot = errors.New("no persisted snapshot")

const dialTimeout = 10 * time.Second

// Database holds the optional external connections. A connection is only
// opened when its URL is configured; unused ones stay nil.
type Database struct {
	PG     *pgxpool.Pool
	Neo4j  neo4j.DriverWithContext
	Redis  *redis.Client
	logger *logrus.Logger
}

// New dials every configured store. Partially opened connections are closed
// again when a later one fails.
func New(cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	db := &Database{logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	var err error
	if cfg.Database.URL != "" {
		if db.PG, err = openPostgres(ctx, cfg.Database); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		logger.WithField("store", "postgres").Info("Connected")
	}
	if cfg.Neo4j.URL != "" {
		if db.Neo4j, err = openNeo4j(ctx, cfg.Neo4j); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("neo4j: %w", err)
		}
		logger.WithField("store", "neo4j").Info("Connected")
	}
	if cfg.Redis.URL != "" {
		if db.Redis, err = openRedis(ctx, cfg.Redis); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		logger.WithField("store", "redis").Info("Connected")
	}

	return db, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func openNeo4j(ctx context.Context, cfg config.Neo4jConfig) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URL,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 10
			c.ConnectionAcquisitionTimeout = 30 * time.Second
		},
	)
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify connectivity: %w", err)
	}
	return driver, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		// bare host:port
		opts = &redis.Options{Addr: cfg.URL}
	}
	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.ReadTimeout = cfg.Timeout
	opts.WriteTimeout = cfg.Timeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}

// Ping checks every open connection and returns the failures by name.
func (db *Database) Ping(ctx context.Context) map[string]error {
	results := make(map[string]error)
	if db.PG != nil {
		results["postgres"] = db.PG.Ping(ctx)
	}
	if db.Neo4j != nil {
		results["neo4j"] = db.Neo4j.VerifyConnectivity(ctx)
	}
	if db.Redis != nil {
		results["redis"] = db.Redis.Ping(ctx).Err()
	}
	return results
}

func (db *Database) Close() error {
	var errs []error

	if db.PG != nil {
		db.PG.Close()
	}
	if db.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		if err := db.Neo4j.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("neo4j: %w", err))
		}
	}
	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing connections: %w", err)
	}
	db.logger.Debug("Database connections closed")
	return nil
}

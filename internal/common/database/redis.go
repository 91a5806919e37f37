// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"certification-workers/internal/common/config"
	"certification-workers/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// RedisClient backs the cross-replica entity locks.
type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:       cfg.Address,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: "certification-workers",
		// Lock polling issues many short commands; fail fast instead of
		// queueing behind a stalled connection.
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolTimeout:  3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})
	return &RedisClient{Client: rdb}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return errors.NewDatabaseConnectionFailedError(fmt.Errorf("redis ping failed: %w", err))
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

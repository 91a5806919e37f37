// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"certification-workers/internal/common/config"
	"certification-workers/internal/common/errors"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// PostgresClient owns the connection pool shared by the store and the audit
// sink.
type PostgresClient struct {
	DB   *sql.DB
	name string
}

// NewPostgres opens a connection pool. The connection is not checked until
// Ping.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db, name: cfg.Database}, nil
}

// Ping returns a retryable DATABASE_CONNECTION_FAILED error when the pool
// cannot reach the server.
func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return errors.NewDatabaseConnectionFailedError(fmt.Errorf("postgres ping failed: %w", err))
	}
	return nil
}

// RegisterMetrics exports pool statistics (open, in-use, wait counts) as
// go_sql_* series labelled with the database name.
func (c *PostgresClient) RegisterMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(collectors.NewDBStatsCollector(c.DB, c.name)); err != nil {
		return fmt.Errorf("register postgres pool metrics: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

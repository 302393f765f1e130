// Package db provides the Postgres storage of the console via pgx: pooling, migrations, seeding and the repository.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// applicationName identifies console sessions in pg_stat_activity.
const applicationName = "standards-console"

// NewPool opens a pgx pool on databaseURL and verifies it with a ping.
// Pool limits given in the URL (pool_max_conns, ...) take precedence over the
// console defaults.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}
	applyDefaults(cfg, databaseURL)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established (max conns %d)", logPrefix, cfg.MaxConns))
	return pool, nil
}

func applyDefaults(cfg *pgxpool.Config, databaseURL string) {
	if !urlSets(databaseURL, "pool_max_conns") {
		cfg.MaxConns = 10
	}
	if !urlSets(databaseURL, "pool_min_conns") {
		cfg.MinConns = 1
	}
	if !urlSets(databaseURL, "pool_health_check_period") {
		cfg.HealthCheckPeriod = 30 * time.Second
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
}

// urlSets reports whether the connection string names key, in URL query or
// keyword/value form.
func urlSets(databaseURL, key string) bool {
	return strings.Contains(databaseURL, key+"=")
}

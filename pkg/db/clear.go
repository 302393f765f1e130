package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearConsole truncates every console table. Schema is preserved; only data is removed.
func ClearConsole(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing console tables", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE
		bulk_action_runs,
		standard_templates,
		field_mappings,
		integration_extensions,
		standard_schemas
		CASCADE`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Console cleared", clearLogPrefix))
	return nil
}

// Package main is the entrypoint for the standards console service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/standards-console/internal/config"
	"github.com/morezero/standards-console/internal/server"
	"github.com/morezero/standards-console/pkg/db"
)

const usage = `Usage: console [command]
       console serve              Start the console service (NATS, HTTP, console API).
       console migrate up         Run database migrations.
       console migrate down       Roll back one migration (not supported by every migration).
       console migrate status     Show migration status.
       console ensure-db [name]   Create database if missing (default name: console_test). Uses DATABASE_URL host/user.
       console clear              Truncate catalog, mappings, templates and bulk runs; schema is preserved.
       console seed [file]        Seed the standards catalog and integration fields (default CONSOLE_SEED_FILE).

Environment: DATABASE_URL (required), MIGRATION_PATH, RUN_MIGRATIONS, HTTP_PORT (default 8080), COMMS_URL,
CONSOLE_SUBJECT, CONSOLE_CHANGE_EVENT_SUBJECT, CONSOLE_REQUEST_TIMEOUT, CONSOLE_SEED_FILE, SETTINGS_BUCKET,
HEALTH_CHECK_TIMEOUT, SERVICE_NAME, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("console migrate: require subcommand (up, down, status)")
		}
		if err := runMigrate(args[1]); err != nil {
			log.Fatalf("console migrate %s: %v", args[1], err)
		}
		return
	case "clear":
		if err := withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
			return db.ClearConsole(ctx, pool)
		}); err != nil {
			log.Fatalf("console clear: %v", err)
		}
		return
	case "seed":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runSeed(file); err != nil {
			log.Fatalf("console seed: %v", err)
		}
		return
	case "ensure-db":
		name := "console_test"
		if len(args) > 1 && args[1] != "" {
			name = args[1]
		}
		if err := runEnsureDB(name); err != nil {
			log.Fatalf("console ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("console: %v", err)
	}
}

// withPool loads and validates config, opens a pool and runs fn with it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrate(sub string) error {
	switch sub {
	case "up", "status", "down":
	default:
		return fmt.Errorf("unknown subcommand %q (use up, down, status)", sub)
	}
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		switch sub {
		case "status":
			return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
		case "down":
			return db.MigrationDown(ctx, pool, cfg.MigrationPath)
		}
		migrations, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

func runSeed(override string) error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		path := override
		if path == "" {
			path = cfg.SeedFile
		}
		if err := db.Seed(ctx, pool, path); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		return nil
	})
}

func runEnsureDB(name string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Query parameters such as sslmode are kept.
	u.Path = "/" + name
	created, err := db.EnsureDatabase(context.Background(), u.String())
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Database %q created.\n", name)
	} else {
		fmt.Printf("Database %q already exists.\n", name)
	}
	return nil
}

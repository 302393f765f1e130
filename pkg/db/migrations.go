package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "db:migrations"

// ErrForwardOnly is returned by MigrationDown: console migrations are never rolled back.
var ErrForwardOnly = errors.New("migrations are forward-only")

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS console_migrations (
    version    INT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migration is one numbered SQL file, e.g. "0002_bulk_runs.sql" is version 2.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// LoadMigrations reads every .sql file of dir ordered by version. File names
// must start with a numeric version followed by an underscore.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var out []Migration
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		version, name, err := parseMigrationName(e.Name())
		if err != nil {
			return nil, fmt.Errorf("%s - %w", migrationsLogPrefix, err)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("%s - %s and %s share version %d", migrationsLogPrefix, prev, e.Name(), version)
		}
		seen[version] = e.Name()

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	slog.Info(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

func parseMigrationName(file string) (int, string, error) {
	base := strings.TrimSuffix(file, ".sql")
	num, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("migration %s: want <version>_<name>.sql", file)
	}
	version, err := strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("migration %s: invalid version %q", file, num)
	}
	return version, name, nil
}

// Pending returns the migrations whose version is not in applied.
func Pending(all []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// RunMigrations applies the pending migrations, each in its own transaction
// together with its console_migrations row.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("%s - failed to create migrations table: %w", migrationsLogPrefix, err)
	}
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	pending := Pending(migrations, applied)
	slog.Info(fmt.Sprintf("%s - %d of %d migrations pending", migrationsLogPrefix, len(pending), len(migrations)))
	for _, m := range pending {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO console_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s - migration %d (%s) failed: %w", migrationsLogPrefix, m.Version, m.Name, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied migration %d %s", migrationsLogPrefix, m.Version, m.Name))
	}
	return nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[int]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM console_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list applied migrations: %w", migrationsLogPrefix, err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan applied migrations: %w", migrationsLogPrefix, err)
	}
	out := make(map[int]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}

// MigrationStatus prints every migration of migrationPath with its state.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	all, err := LoadMigrations(migrationPath)
	if err != nil {
		return err
	}

	var tracked bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass('console_migrations') IS NOT NULL`).Scan(&tracked); err != nil {
		return fmt.Errorf("%s - failed to check migrations table: %w", migrationsLogPrefix, err)
	}
	applied := map[int]bool{}
	if tracked {
		if applied, err = appliedVersions(ctx, pool); err != nil {
			return err
		}
	}

	for _, m := range all {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%04d %-30s %s\n", m.Version, m.Name, state)
	}
	if n := len(Pending(all, applied)); n > 0 {
		fmt.Printf("%d pending migration(s); run 'console migrate up'.\n", n)
	}
	return nil
}

// MigrationDown always fails with ErrForwardOnly; restore a backup to roll back.
func MigrationDown(_ context.Context, _ *pgxpool.Pool, _ string) error {
	return fmt.Errorf("%s - %w: restore a database backup to roll back", migrationsLogPrefix, ErrForwardOnly)
}

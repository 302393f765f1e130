package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

const ensureLogPrefix = "db:ensure"

// safeDBName matches allowed database names (alphanumeric and underscore only).
var safeDBName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// requiredExtensions are enabled in every console database; pgcrypto provides
// gen_random_uuid for template ids.
var requiredExtensions = []string{"pgcrypto"}

// databaseName returns the validated database name of databaseURL.
func databaseName(databaseURL string) (*url.URL, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	name := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	if name == "" {
		return nil, "", fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	}
	if !safeDBName.MatchString(name) {
		return nil, "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, name)
	}
	return u, name, nil
}

// EnsureDatabase creates the database named in databaseURL when missing, using
// the maintenance database on the same server, then enables the required
// extensions. It reports whether the database was created.
func EnsureDatabase(ctx context.Context, databaseURL string) (bool, error) {
	u, name, err := databaseName(databaseURL)
	if err != nil {
		return false, err
	}

	admin, err := pgx.Connect(ctx, buildPostgresURL(u))
	if err != nil {
		return false, fmt.Errorf("%s - failed to connect to postgres: %w", ensureLogPrefix, err)
	}
	var exists bool
	err = admin.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err == nil && !exists {
		slog.Info(fmt.Sprintf("%s - Creating database %q", ensureLogPrefix, name))
		_, err = admin.Exec(ctx, "CREATE DATABASE "+quoteIdent(name), pgx.QueryExecModeSimpleProtocol)
	}
	_ = admin.Close(ctx)
	if err != nil {
		return false, fmt.Errorf("%s - failed to ensure database %q: %w", ensureLogPrefix, name, err)
	}

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return false, fmt.Errorf("%s - failed to connect to %q: %w", ensureLogPrefix, name, err)
	}
	defer func() { _ = conn.Close(ctx) }()
	for _, ext := range requiredExtensions {
		if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS "+quoteIdent(ext)); err != nil {
			return false, fmt.Errorf("%s - CREATE EXTENSION %s: %w", ensureLogPrefix, ext, err)
		}
	}
	return !exists, nil
}

func buildPostgresURL(u *url.URL) string {
	postgres := *u
	postgres.Path = "/postgres"
	return postgres.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

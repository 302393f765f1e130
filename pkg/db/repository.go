package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for console operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// SCHEMA CATALOG
// =========================================================================

// SchemaRow is one schema of a catalog being written.
type SchemaRow struct {
	ID         string
	Category   string
	Definition []byte
}

// ReplaceCatalog replaces the whole schema catalog in one transaction. Row
// order becomes the catalog order.
func (r *Repository) ReplaceCatalog(ctx context.Context, version string, rows []SchemaRow) error {
	slog.Info(fmt.Sprintf("%s - ReplaceCatalog version=%s schemas=%d", repoLogPrefix, version, len(rows)))

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM standard_schemas`); err != nil {
			return fmt.Errorf("%s - clear schemas: %w", repoLogPrefix, err)
		}
		now := time.Now().UTC()
		for i, row := range rows {
			var category *string
			if row.Category != "" {
				category = &row.Category
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO standard_schemas (id, position, category, definition, catalog_version, created, modified)
				 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
				row.ID, i, category, row.Definition, version, now)
			if err != nil {
				return fmt.Errorf("%s - insert schema %s: %w", repoLogPrefix, row.ID, err)
			}
		}
		return nil
	})
}

// ListSchemas returns the catalog in order with its version. The version is
// empty when the catalog is empty.
func (r *Repository) ListSchemas(ctx context.Context) (string, []StandardSchema, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, position, category, definition, catalog_version, created, modified
		 FROM standard_schemas
		 ORDER BY position, id`)
	if err != nil {
		return "", nil, fmt.Errorf("%s - list schemas: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []StandardSchema
	version := ""
	for rows.Next() {
		var s StandardSchema
		if err := rows.Scan(&s.ID, &s.Position, &s.Category, &s.Definition, &s.CatalogVersion, &s.Created, &s.Modified); err != nil {
			return "", nil, fmt.Errorf("%s - scan schema failed: %w", repoLogPrefix, err)
		}
		version = s.CatalogVersion
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("%s - list schemas: %w", repoLogPrefix, err)
	}
	return version, out, nil
}

// GetSchema finds a schema by id. Returns nil when absent.
func (r *Repository) GetSchema(ctx context.Context, id string) (*StandardSchema, error) {
	var s StandardSchema
	err := r.pool.QueryRow(ctx,
		`SELECT id, position, category, definition, catalog_version, created, modified
		 FROM standard_schemas WHERE id = $1`, id).
		Scan(&s.ID, &s.Position, &s.Category, &s.Definition, &s.CatalogVersion, &s.Created, &s.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - get schema %s: %w", repoLogPrefix, id, err)
	}
	return &s, nil
}

// =========================================================================
// FIELD MAPPINGS
// =========================================================================

// UpsertIntegration writes the field catalog of an integration extension.
func (r *Repository) UpsertIntegration(ctx context.Context, ext IntegrationExtension) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO integration_extensions (extension, headers, fields, integration_fields, modified)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (extension) DO UPDATE SET
		   headers = EXCLUDED.headers,
		   fields = EXCLUDED.fields,
		   integration_fields = EXCLUDED.integration_fields,
		   modified = NOW()`,
		ext.Extension, ext.Headers, ext.Fields, ext.IntegrationFields)
	if err != nil {
		return fmt.Errorf("%s - upsert integration %s: %w", repoLogPrefix, ext.Extension, err)
	}
	return nil
}

// GetIntegration finds an integration extension. Returns nil when absent.
func (r *Repository) GetIntegration(ctx context.Context, extension string) (*IntegrationExtension, error) {
	var e IntegrationExtension
	err := r.pool.QueryRow(ctx,
		`SELECT extension, headers, fields, integration_fields, modified
		 FROM integration_extensions WHERE extension = $1`, extension).
		Scan(&e.Extension, &e.Headers, &e.Fields, &e.IntegrationFields, &e.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - get integration %s: %w", repoLogPrefix, extension, err)
	}
	return &e, nil
}

// ListFieldMappings returns the saved mappings of an extension ordered by row key.
func (r *Repository) ListFieldMappings(ctx context.Context, extension string) ([]FieldMapping, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT extension, row_key, integration_name, integration_id, modified, modified_by
		 FROM field_mappings WHERE extension = $1 ORDER BY row_key`, extension)
	if err != nil {
		return nil, fmt.Errorf("%s - list mappings %s: %w", repoLogPrefix, extension, err)
	}
	defer rows.Close()

	var out []FieldMapping
	for rows.Next() {
		var m FieldMapping
		if err := rows.Scan(&m.Extension, &m.RowKey, &m.IntegrationName, &m.IntegrationID, &m.Modified, &m.ModifiedBy); err != nil {
			return nil, fmt.Errorf("%s - scan mapping failed: %w", repoLogPrefix, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceFieldMappings replaces every mapping of an extension in one transaction.
func (r *Repository) ReplaceFieldMappings(ctx context.Context, extension string, mappings []FieldMapping, userID string) error {
	slog.Info(fmt.Sprintf("%s - ReplaceFieldMappings extension=%s count=%d", repoLogPrefix, extension, len(mappings)))

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM field_mappings WHERE extension = $1`, extension); err != nil {
			return fmt.Errorf("%s - clear mappings: %w", repoLogPrefix, err)
		}
		for _, m := range mappings {
			_, err := tx.Exec(ctx,
				`INSERT INTO field_mappings (extension, row_key, integration_name, integration_id, modified, modified_by)
				 VALUES ($1, $2, $3, $4, NOW(), $5)`,
				extension, m.RowKey, m.IntegrationName, m.IntegrationID, userID)
			if err != nil {
				return fmt.Errorf("%s - insert mapping %s: %w", repoLogPrefix, m.RowKey, err)
			}
		}
		return nil
	})
}

// =========================================================================
// TEMPLATES
// =========================================================================

// UpsertTemplateParams holds parameters for UpsertTemplate.
type UpsertTemplateParams struct {
	// ID is empty for a new template.
	ID        string
	Name      string
	Instances []byte
	Values    []byte
	UserID    string
}

// UpsertTemplate creates a template or replaces an existing one, bumping its revision.
func (r *Repository) UpsertTemplate(ctx context.Context, params UpsertTemplateParams) (*StandardTemplate, error) {
	slog.Info(fmt.Sprintf("%s - UpsertTemplate id=%s name=%s", repoLogPrefix, params.ID, params.Name))

	var row pgx.Row
	if params.ID == "" {
		row = r.pool.QueryRow(ctx,
			`INSERT INTO standard_templates (name, instances, "values", created_by, modified_by)
			 VALUES ($1, $2, $3, $4, $4)
			 RETURNING `+templateColumns,
			params.Name, params.Instances, params.Values, params.UserID)
	} else {
		row = r.pool.QueryRow(ctx,
			`INSERT INTO standard_templates (id, name, instances, "values", created_by, modified_by)
			 VALUES ($1::uuid, $2, $3, $4, $5, $5)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name,
			   instances = EXCLUDED.instances,
			   "values" = EXCLUDED."values",
			   revision = standard_templates.revision + 1,
			   modified = NOW(),
			   modified_by = EXCLUDED.modified_by
			 RETURNING `+templateColumns,
			params.ID, params.Name, params.Instances, params.Values, params.UserID)
	}
	return scanTemplate(row)
}

// GetTemplate finds a template by id. Returns nil when absent.
func (r *Repository) GetTemplate(ctx context.Context, id string) (*StandardTemplate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM standard_templates WHERE id = $1::uuid`, id)
	return scanTemplate(row)
}

const templateColumns = `id::text, name, instances, "values", revision, created, created_by, modified, modified_by`

func scanTemplate(row pgx.Row) (*StandardTemplate, error) {
	var t StandardTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Instances, &t.Values, &t.Revision,
		&t.Created, &t.CreatedBy, &t.Modified, &t.ModifiedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan template failed: %w", repoLogPrefix, err)
	}
	return &t, nil
}

// =========================================================================
// BULK ACTION RUNS
// =========================================================================

// InsertBulkRun records a dispatched bulk action.
func (r *Repository) InsertBulkRun(ctx context.Context, run BulkActionRun) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO bulk_action_runs (id, action, url, row_count, succeeded, failed, payload, results, created_by)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Action, run.URL, run.RowCount, run.Succeeded, run.Failed, run.Payload, run.Results, run.CreatedBy)
	if err != nil {
		return fmt.Errorf("%s - insert bulk run %s: %w", repoLogPrefix, run.ID, err)
	}
	return nil
}

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/morezero/standards-console/pkg/catalog"
)

const seedLogPrefix = "db:seed"

// IntegrationSeed is the field catalog of one integration in a seed file.
type IntegrationSeed struct {
	Headers           []map[string]any      `json:"CIPPFieldHeaders" yaml:"CIPPFieldHeaders"`
	Fields            []map[string]any      `json:"CIPPFields" yaml:"CIPPFields"`
	IntegrationFields []catalog.FieldOption `json:"IntegrationFields" yaml:"IntegrationFields"`
}

type integrationsFile struct {
	Integrations map[string]IntegrationSeed `json:"integrations" yaml:"integrations"`
}

// DecodeIntegrations reads the optional integrations section of a seed file.
func DecodeIntegrations(name string, data []byte) (map[string]IntegrationSeed, error) {
	var f integrationsFile
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	}
	return f.Integrations, nil
}

// SchemaRows encodes a catalog snapshot into repository rows, in catalog order.
func SchemaRows(snap *catalog.Snapshot) ([]SchemaRow, error) {
	rows := make([]SchemaRow, 0, len(snap.Schemas))
	for _, s := range snap.Schemas {
		def, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("%s - encode schema %s: %w", seedLogPrefix, s.ID, err)
		}
		rows = append(rows, SchemaRow{ID: s.ID, Category: s.Category, Definition: def})
	}
	return rows, nil
}

// Seed writes the standards catalog and integration field catalogs of the seed
// file at path (or the default catalog when path is empty and no seed file is
// found). Idempotent: the catalog is replaced, integrations are upserted.
func Seed(ctx context.Context, pool *pgxpool.Pool, path string) error {
	snap, err := catalog.LoadSeedFile(path)
	if err != nil {
		return fmt.Errorf("%s - load seed: %w", seedLogPrefix, err)
	}
	rows, err := SchemaRows(snap)
	if err != nil {
		return err
	}

	repo := NewRepository(pool)
	if err := repo.ReplaceCatalog(ctx, snap.Version, rows); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - seeded %d standards (catalog %s)", seedLogPrefix, len(rows), snap.Version))

	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	integrations, err := DecodeIntegrations(path, data)
	if err != nil {
		return fmt.Errorf("%s - decode integrations in %s: %w", seedLogPrefix, path, err)
	}

	names := make([]string, 0, len(integrations))
	for name := range integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ext, err := integrationRow(name, integrations[name])
		if err != nil {
			return err
		}
		if err := repo.UpsertIntegration(ctx, ext); err != nil {
			return err
		}
	}
	slog.Info(fmt.Sprintf("%s - seeded %d integrations", seedLogPrefix, len(names)))
	return nil
}

func integrationRow(name string, seed IntegrationSeed) (IntegrationExtension, error) {
	ext := IntegrationExtension{Extension: name}
	var err error
	if ext.Headers, err = json.Marshal(nonNil(seed.Headers)); err != nil {
		return ext, err
	}
	if ext.Fields, err = json.Marshal(nonNil(seed.Fields)); err != nil {
		return ext, err
	}
	opts := seed.IntegrationFields
	if opts == nil {
		opts = []catalog.FieldOption{}
	}
	if ext.IntegrationFields, err = json.Marshal(opts); err != nil {
		return ext, err
	}
	return ext, nil
}

func nonNil(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

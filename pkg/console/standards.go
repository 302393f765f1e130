package console

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/commsutil"
)

const standardsLogPrefix = "console:standards"

// ListStandards returns the schema catalog.
func (s *Service) ListStandards(ctx context.Context) (*catalog.Snapshot, error) {
	snap, _, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug(fmt.Sprintf("%s - listing %d standards (catalog %s)", standardsLogPrefix, len(snap.Schemas), snap.Version))
	return snap, nil
}

// ListFieldOptions returns the selectable options of a schema's sub-fields. Each
// option inherits the type and field type of the field declaring it, so callers
// can filter per field.
func (s *Service) ListFieldOptions(ctx context.Context, input *commsutil.ListFieldOptionsInput) ([]catalog.FieldOption, error) {
	if input.SchemaID == "" {
		return nil, NewError(CodeInvalidArgument, "schemaId is required")
	}
	_, cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	schema, ok := cat.Find(catalog.SchemaID(input.SchemaID))
	if !ok {
		return nil, NewError(CodeNotFound, fmt.Sprintf("Standard not found: %s", input.SchemaID))
	}

	out := []catalog.FieldOption{}
	for _, f := range schema.SubFields {
		for _, o := range f.Options {
			if o.Type == "" {
				o.Type = string(f.Type)
			}
			if o.FieldType == "" {
				o.FieldType = f.FieldType
			}
			out = append(out, o)
		}
	}
	return out, nil
}

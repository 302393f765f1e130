package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/morezero/standards-console/pkg/actions"
	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/commsutil"
	"github.com/morezero/standards-console/pkg/completeness"
	"github.com/morezero/standards-console/pkg/db"
	"github.com/morezero/standards-console/pkg/events"
	"github.com/morezero/standards-console/pkg/formstate"
	"github.com/morezero/standards-console/pkg/instance"
)

const (
	templatesLogPrefix  = "console:templates"
	maxTemplateNameLen  = 200
	maxTemplateInstance = 500
	defaultTemplateName = "Standards template"
)

// GetTemplate returns a saved template.
func (s *Service) GetTemplate(ctx context.Context, input *commsutil.GetTemplateInput) (*instance.Template, error) {
	if _, err := uuid.Parse(input.ID); err != nil {
		return nil, NewError(CodeInvalidArgument, "id must be a UUID")
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	row, err := s.store.GetTemplate(ctx, input.ID)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - GetTemplate failed: %v", templatesLogPrefix, err))
		return nil, &Error{Code: CodeInternal, Message: "Failed to load template"}
	}
	if row == nil {
		return nil, NewError(CodeNotFound, fmt.Sprintf("Template not found: %s", input.ID))
	}
	return templateFromRow(row)
}

// SaveTemplate validates and stores a template. Every instance must belong to a
// known standard, select an action the standard permits and be complete.
// Values outside the listed instances are dropped.
func (s *Service) SaveTemplate(ctx context.Context, input *instance.Template, userID string) (*commsutil.SaveTemplateOutput, error) {
	slog.Info(fmt.Sprintf("%s - id=%s name=%s instances=%d", templatesLogPrefix, input.ID, input.Name, len(input.Keys)))

	if input.ID != "" {
		if _, err := uuid.Parse(input.ID); err != nil {
			return nil, NewError(CodeInvalidArgument, "id must be a UUID")
		}
	}
	if len(input.Name) > maxTemplateNameLen {
		return nil, NewError(CodeInvalidArgument, fmt.Sprintf("name exceeds %d characters", maxTemplateNameLen))
	}
	if len(input.Keys) > maxTemplateInstance {
		return nil, NewError(CodeInvalidArgument, fmt.Sprintf("instances count exceeds maximum %d", maxTemplateInstance))
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	_, cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	values := formstate.NewStore()
	values.Reset(input.Values)
	if err := validateTemplate(cat, input.Keys, values); err != nil {
		return nil, err
	}

	kept := formstate.NewStore()
	for _, k := range input.Keys {
		if v, ok := values.Get(k); ok {
			_ = kept.Set(k, v)
		}
	}
	instances, err := json.Marshal(nonNilKeys(input.Keys))
	if err != nil {
		return nil, &Error{Code: CodeInternal, Message: "Failed to encode template"}
	}
	encoded, err := json.Marshal(kept.Snapshot())
	if err != nil {
		return nil, NewError(CodeInvalidArgument, "values are not encodable")
	}

	name := input.Name
	if name == "" {
		name = defaultTemplateName
	}
	row, err := s.store.UpsertTemplate(ctx, db.UpsertTemplateParams{
		ID:        input.ID,
		Name:      name,
		Instances: instances,
		Values:    encoded,
		UserID:    userID,
	})
	if err != nil || row == nil {
		slog.Error(fmt.Sprintf("%s - UpsertTemplate failed: %v", templatesLogPrefix, err))
		return nil, &Error{Code: CodeInternal, Message: "Failed to save template"}
	}

	s.publish(ctx, &events.ConfigChangedEvent{
		Kind:          events.KindTemplate,
		ID:            row.ID,
		ChangedFields: input.Keys,
		Revision:      row.Revision,
		UserID:        userID,
	})
	slog.Info(fmt.Sprintf("%s - saved template %s revision=%d", templatesLogPrefix, row.ID, row.Revision))
	return &commsutil.SaveTemplateOutput{ID: row.ID, Revision: row.Revision}, nil
}

func validateTemplate(cat *catalog.Catalog, keys []string, values completeness.Getter) *Error {
	seen := make(map[string]bool, len(keys))
	var incomplete []string
	for _, key := range keys {
		if seen[key] {
			return NewError(CodeInvalidArgument, fmt.Sprintf("duplicate instance %s", key))
		}
		seen[key] = true

		schema, ok := cat.Find(catalog.SchemaID(key))
		if !ok {
			return NewError(CodeNotFound, fmt.Sprintf("Standard not found: %s", catalog.SchemaID(key)))
		}
		if !schema.Multiple && key != schema.ID {
			return NewError(CodeInvalidArgument, fmt.Sprintf("%s does not allow multiple instances", schema.ID))
		}

		if schema.Required() == catalog.DefaultRequiredField {
			if v, ok := values.Get(key + "." + catalog.DefaultRequiredField); ok {
				if action, ok := actions.ValueOf(v); ok && !actions.Allowed(schema.DisabledFeatures, action) {
					return &Error{
						Code:    CodeForbidden,
						Message: fmt.Sprintf("action %s is disabled for %s", action, schema.ID),
						Details: map[string]interface{}{"instance": key, "action": action},
					}
				}
			}
		}
		if !completeness.Evaluate(schema, key, values) {
			incomplete = append(incomplete, key)
		}
	}
	if len(incomplete) > 0 {
		return &Error{
			Code:    CodeInvalidArgument,
			Message: "incomplete standards",
			Details: map[string]interface{}{"incomplete": incomplete},
		}
	}
	return nil
}

func templateFromRow(row *db.StandardTemplate) (*instance.Template, error) {
	t := &instance.Template{ID: row.ID, Name: row.Name, Revision: row.Revision}
	if err := unmarshalIfSet(row.Instances, &t.Keys); err != nil {
		slog.Error(fmt.Sprintf("%s - corrupt instances of %s: %v", templatesLogPrefix, row.ID, err))
		return nil, &Error{Code: CodeInternal, Message: "Corrupt template"}
	}
	if err := unmarshalIfSet(row.Values, &t.Values); err != nil {
		slog.Error(fmt.Sprintf("%s - corrupt values of %s: %v", templatesLogPrefix, row.ID, err))
		return nil, &Error{Code: CodeInternal, Message: "Corrupt template"}
	}
	if t.Keys == nil {
		t.Keys = []string{}
	}
	if t.Values == nil {
		t.Values = map[string]any{}
	}
	return t, nil
}

func nonNilKeys(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}

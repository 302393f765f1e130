package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/commsutil"
	"github.com/morezero/standards-console/pkg/db"
	"github.com/morezero/standards-console/pkg/events"
	"github.com/morezero/standards-console/pkg/mapping"
)

const mappingsLogPrefix = "console:mappings"

// GetFieldMapping returns the field catalog and saved mappings of an extension.
func (s *Service) GetFieldMapping(ctx context.Context, input *commsutil.GetFieldMappingInput) (*mapping.Response, error) {
	if input.Extension == "" {
		return nil, NewError(CodeInvalidArgument, "extension is required")
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	ext, err := s.getIntegration(ctx, input.Extension)
	if err != nil {
		return nil, err
	}
	resp, err := decodeIntegration(ext)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - corrupt integration %s: %v", mappingsLogPrefix, input.Extension, err))
		return nil, &Error{Code: CodeInternal, Message: "Corrupt integration catalog"}
	}

	rows, err := s.store.ListFieldMappings(ctx, input.Extension)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - ListFieldMappings failed: %v", mappingsLogPrefix, err))
		return nil, &Error{Code: CodeInternal, Message: "Failed to load mappings"}
	}
	for _, row := range rows {
		m := mapping.Mapping{RowKey: row.RowKey, IntegrationName: row.IntegrationName}
		if len(row.IntegrationID) > 0 {
			_ = json.Unmarshal(row.IntegrationID, &m.IntegrationID)
		}
		resp.Mappings = append(resp.Mappings, m)
	}
	return resp, nil
}

// SaveFieldMapping replaces the mappings of an extension. Every mapped field must
// be one of the extension's console fields.
func (s *Service) SaveFieldMapping(ctx context.Context, input *commsutil.SaveFieldMappingInput, userID string) (*commsutil.SaveFieldMappingOutput, error) {
	slog.Info(fmt.Sprintf("%s - extension=%s mappings=%d", mappingsLogPrefix, input.Extension, len(input.Mappings)))

	if input.Extension == "" {
		return nil, NewError(CodeInvalidArgument, "extension is required")
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	ext, err := s.getIntegration(ctx, input.Extension)
	if err != nil {
		return nil, err
	}
	resp, err := decodeIntegration(ext)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Message: "Corrupt integration catalog"}
	}
	known := make(map[string]bool, len(resp.CIPPFields))
	for _, f := range resp.CIPPFields {
		known[f.FieldName] = true
	}

	keys := make([]string, 0, len(input.Mappings))
	var unknown []string
	for k := range input.Mappings {
		if !known[k] {
			unknown = append(unknown, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &Error{
			Code:    CodeInvalidArgument,
			Message: fmt.Sprintf("unknown fields for %s", input.Extension),
			Details: map[string]interface{}{"fields": unknown},
		}
	}

	rows := make([]db.FieldMapping, 0, len(keys))
	for _, k := range keys {
		opt := input.Mappings[k]
		id, err := json.Marshal(opt.Value)
		if err != nil {
			return nil, NewError(CodeInvalidArgument, fmt.Sprintf("mapping %s: value is not encodable", k))
		}
		rows = append(rows, db.FieldMapping{Extension: input.Extension, RowKey: k, IntegrationName: opt.Label, IntegrationID: id})
	}
	if err := s.store.ReplaceFieldMappings(ctx, input.Extension, rows, userID); err != nil {
		slog.Error(fmt.Sprintf("%s - ReplaceFieldMappings failed: %v", mappingsLogPrefix, err))
		return nil, &Error{Code: CodeInternal, Message: "Failed to save mappings"}
	}

	s.publish(ctx, &events.ConfigChangedEvent{
		Kind:          events.KindMapping,
		ID:            input.Extension,
		ChangedFields: keys,
		UserID:        userID,
	})
	return &commsutil.SaveFieldMappingOutput{Success: true, Count: len(rows)}, nil
}

func (s *Service) getIntegration(ctx context.Context, extension string) (*db.IntegrationExtension, error) {
	ext, err := s.store.GetIntegration(ctx, extension)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - GetIntegration failed: %v", mappingsLogPrefix, err))
		return nil, &Error{Code: CodeInternal, Message: "Failed to load integration"}
	}
	if ext == nil {
		return nil, NewError(CodeNotFound, fmt.Sprintf("Integration not found: %s", extension))
	}
	return ext, nil
}

func decodeIntegration(ext *db.IntegrationExtension) (*mapping.Response, error) {
	resp := &mapping.Response{
		CIPPFieldHeaders:  []mapping.Header{},
		CIPPFields:        []mapping.Field{},
		IntegrationFields: []catalog.FieldOption{},
		Mappings:          []mapping.Mapping{},
	}
	if err := unmarshalIfSet(ext.Headers, &resp.CIPPFieldHeaders); err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	if err := unmarshalIfSet(ext.Fields, &resp.CIPPFields); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if err := unmarshalIfSet(ext.IntegrationFields, &resp.IntegrationFields); err != nil {
		return nil, fmt.Errorf("integration fields: %w", err)
	}
	return resp, nil
}

func unmarshalIfSet(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

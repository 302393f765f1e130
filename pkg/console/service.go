// Package console implements the server side business logic of the standards
// console: catalog listing, field mappings, templates and bulk actions.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/db"
	"github.com/morezero/standards-console/pkg/events"
	"github.com/morezero/standards-console/pkg/metrics"
)

const serviceLogPrefix = "console:service"

// Error codes returned to callers.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeForbidden       = "FORBIDDEN"
	CodeInternal        = "INTERNAL_ERROR"
)

// Store is the persistence the service needs. *db.Repository implements it.
type Store interface {
	Ping(ctx context.Context) error
	ListSchemas(ctx context.Context) (string, []db.StandardSchema, error)
	GetIntegration(ctx context.Context, extension string) (*db.IntegrationExtension, error)
	ListFieldMappings(ctx context.Context, extension string) ([]db.FieldMapping, error)
	ReplaceFieldMappings(ctx context.Context, extension string, mappings []db.FieldMapping, userID string) error
	UpsertTemplate(ctx context.Context, params db.UpsertTemplateParams) (*db.StandardTemplate, error)
	GetTemplate(ctx context.Context, id string) (*db.StandardTemplate, error)
	InsertBulkRun(ctx context.Context, run db.BulkActionRun) error
}

var _ Store = (*db.Repository)(nil)

// Service is the console service containing all business logic methods.
type Service struct {
	store     Store
	publisher events.EventPublisher
	metrics   *metrics.Metrics
	executor  Executor
	fallback  *catalog.Snapshot
}

// Params holds parameters for NewService.
type Params struct {
	Store     Store
	Publisher events.EventPublisher
	Metrics   *metrics.Metrics
	Executor  Executor
	// Fallback is served by listStandards while the stored catalog is empty.
	// Defaults to catalog.DefaultSnapshot.
	Fallback *catalog.Snapshot
}

// NewService creates a new Service.
func NewService(params Params) *Service {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	exec := params.Executor
	if exec == nil {
		exec = AckExecutor{}
	}
	fallback := params.Fallback
	if fallback == nil {
		fallback = catalog.DefaultSnapshot()
	}
	return &Service{
		store:     params.Store,
		publisher: pub,
		metrics:   params.Metrics,
		executor:  exec,
		fallback:  fallback,
	}
}

// Error is a structured error from the console service.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// requireStore returns an error if the store is not configured.
func (s *Service) requireStore() *Error {
	if s.store == nil {
		return &Error{Code: CodeInternal, Message: "store not configured"}
	}
	return nil
}

// loadCatalog returns the stored catalog, or the fallback when nothing is stored.
func (s *Service) loadCatalog(ctx context.Context) (*catalog.Snapshot, *catalog.Catalog, error) {
	snap := s.fallback
	if s.store != nil {
		version, rows, err := s.store.ListSchemas(ctx)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - ListSchemas failed: %v", serviceLogPrefix, err))
			return nil, nil, &Error{Code: CodeInternal, Message: "Failed to load standards"}
		}
		if len(rows) > 0 {
			snap = &catalog.Snapshot{Version: version, Schemas: make([]catalog.Schema, 0, len(rows))}
			for _, row := range rows {
				var schema catalog.Schema
				if err := json.Unmarshal(row.Definition, &schema); err != nil {
					slog.Error(fmt.Sprintf("%s - corrupt schema %s: %v", serviceLogPrefix, row.ID, err))
					return nil, nil, &Error{Code: CodeInternal, Message: fmt.Sprintf("Corrupt standard %s", row.ID)}
				}
				snap.Schemas = append(snap.Schemas, schema)
			}
		}
	}

	cat, err := catalog.New(snap)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - invalid catalog: %v", serviceLogPrefix, err))
		return nil, nil, &Error{Code: CodeInternal, Message: "Invalid standards catalog"}
	}
	return snap, cat, nil
}

// publish emits a change event. Failures are logged, never returned.
func (s *Service) publish(ctx context.Context, event *events.ConfigChangedEvent) {
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if err := s.publisher.PublishChanged(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s change for %s: %v", serviceLogPrefix, event.Kind, event.ID, err))
		return
	}
	s.metrics.ObserveChange(event.Kind)
}

// Package dispatcher routes incoming COMMS messages to console service methods.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/standards-console/pkg/bulk"
	"github.com/morezero/standards-console/pkg/commsutil"
	"github.com/morezero/standards-console/pkg/console"
	"github.com/morezero/standards-console/pkg/instance"
	"github.com/morezero/standards-console/pkg/metrics"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes COMMS requests to console methods.
type Dispatcher struct {
	service *console.Service
	metrics *metrics.Metrics
}

// NewDispatcher creates a new Dispatcher. m may be nil.
func NewDispatcher(svc *console.Service, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{service: svc, metrics: m}
}

// Dispatch routes a request to the appropriate console method and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *commsutil.Request) *commsutil.Response {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))
	start := time.Now()

	userID := "system"
	if req.Ctx != nil {
		if req.Ctx.UserID != "" {
			userID = req.Ctx.UserID
		}
		if req.Ctx.TimeoutMs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Ctx.TimeoutMs)*time.Millisecond)
			defer cancel()
		}
	}

	resp := d.route(ctx, req, userID)

	code := "OK"
	if resp.Error != nil {
		code = resp.Error.Code
	}
	d.metrics.ObserveRequest(req.Method, code, time.Since(start))
	return resp
}

func (d *Dispatcher) route(ctx context.Context, req *commsutil.Request, userID string) *commsutil.Response {
	switch req.Method {
	case commsutil.MethodListStandards:
		return d.handleListStandards(ctx, req)
	case commsutil.MethodListFieldOptions:
		return d.handleListFieldOptions(ctx, req)
	case commsutil.MethodGetFieldMapping:
		return d.handleGetFieldMapping(ctx, req)
	case commsutil.MethodSaveFieldMapping:
		return d.handleSaveFieldMapping(ctx, req, userID)
	case commsutil.MethodGetTemplate:
		return d.handleGetTemplate(ctx, req)
	case commsutil.MethodSaveTemplate:
		return d.handleSaveTemplate(ctx, req, userID)
	case commsutil.MethodBulkAction:
		return d.handleBulkAction(ctx, req, userID)
	case commsutil.MethodHealth:
		return d.handleHealth(ctx, req)
	default:
		return &commsutil.Response{
			ID: req.ID,
			Ok: false,
			Error: &commsutil.ErrorDetail{
				Code:      "METHOD_NOT_FOUND",
				Message:   fmt.Sprintf("Unknown method: %s", req.Method),
				Retryable: false,
			},
		}
	}
}

func (d *Dispatcher) handleListStandards(ctx context.Context, req *commsutil.Request) *commsutil.Response {
	result, err := d.service.ListStandards(ctx)
	if err != nil {
		return consoleErrorToResponse(req.ID, err)
	}
	return &commsutil.Response{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleListFieldOptions(ctx context.Context, req *commsutil.Request) *commsutil.Response {
	var input commsutil.ListFieldOptionsInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, console.CodeInvalidArgument, "Failed to parse listFieldOptions params", false)
	}

	result, err := d.service.ListFieldOptions(ctx, &input)
	if err != nil {
		return consoleErrorToResponse(req.ID, err)
	}
	return &commsutil.Response{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleGetFieldMapping(ctx context.Context, req *commsutil.Request) *commsutil.Response {
	var input commsutil.GetFieldMappingInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, console.CodeInvalidArgument, "Failed to parse getFieldMapping params", false)
	}

	result, err := d.service.GetFieldMapping(ctx, &input)
	if err != nil {
		return consoleErrorToResponse(req.ID, err)
	}
	return &commsutil.Response{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleSaveFieldMapping(ctx context.Context, req *commsutil.Request, userID string) *commsutil.Response {
	var input commsutil.SaveFieldMappingInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, console.CodeInvalidArgument, "Failed to parse saveFieldMapping params", false)
	}

	result, err := d.service.SaveFieldMapping(ctx, &input, userID)
	if err != nil {
		return consoleErrorToResponse(req.ID, err)
	}
	return &commsutil.Response{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleGetTemplate(ctx context.Context, req *commsutil.Request) *commsutil.Response {
	var input commsutil.GetTemplateInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, console.CodeInvalidArgument, "Failed to parse getTemplate params", false)
	}

	result, err := d.service.GetTemplate(ctx, &input)
	if err != nil {
		return consoleErrorToResponse(req.ID, err)
	}
	return &commsutil.Response{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleSaveTemplate(ctx context.Context, req *commsutil.Request, userID string) *commsutil.Response {
	var input instance.Template
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, console.CodeInvalidArgument, "Failed to parse saveTemplate params", false)
	}

	result, err := d.service.SaveTemplate(ctx, &input, userID)
	if err != nil {
		return consoleErrorToResponse(req.ID, err)
	}
	return &commsutil.Response{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleBulkAction(ctx context.Context, req *commsutil.Request, userID string) *commsutil.Response {
	var input bulk.Request
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, console.CodeInvalidArgument, "Failed to parse bulkAction params", false)
	}

	result, err := d.service.BulkAction(ctx, &input, userID)
	if err != nil {
		return consoleErrorToResponse(req.ID, err)
	}
	return &commsutil.Response{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleHealth(ctx context.Context, req *commsutil.Request) *commsutil.Response {
	if d.service == nil {
		return &commsutil.Response{ID: req.ID, Ok: true, Result: &commsutil.HealthOutput{Status: "unhealthy"}}
	}
	result := d.service.Health(ctx)
	return &commsutil.Response{ID: req.ID, Ok: true, Result: result}
}

// --- helpers ---

// decodeParams accepts absent params as an empty object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func errorResponse(id, code, message string, retryable bool) *commsutil.Response {
	return &commsutil.Response{
		ID: id,
		Ok: false,
		Error: &commsutil.ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func consoleErrorToResponse(id string, err error) *commsutil.Response {
	var cerr *console.Error
	if errors.As(err, &cerr) {
		return &commsutil.Response{
			ID: id,
			Ok: false,
			Error: &commsutil.ErrorDetail{
				Code:      cerr.Code,
				Message:   cerr.Message,
				Details:   cerr.Details,
				Retryable: cerr.Code == console.CodeInternal,
			},
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errorResponse(id, "TIMEOUT", "request timed out", true)
	}
	return errorResponse(id, console.CodeInternal, err.Error(), true)
}

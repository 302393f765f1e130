package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/morezero/standards-console/pkg/bulk"
	"github.com/morezero/standards-console/pkg/db"
	"github.com/morezero/standards-console/pkg/events"
)

const (
	bulkLogPrefix   = "console:bulk"
	maxBulkRows     = 1000
	bulkMessageDone = "Queued %s"
)

// Executor performs one row of a bulk action. params holds the row values
// selected by the action's data mapping, fields the confirmation dialog values.
type Executor interface {
	Execute(ctx context.Context, action, url string, params, fields map[string]any) (string, error)
}

// AckExecutor accepts every row without side effects.
type AckExecutor struct{}

func (AckExecutor) Execute(_ context.Context, action, _ string, _, _ map[string]any) (string, error) {
	return fmt.Sprintf(bulkMessageDone, action), nil
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, action, url string, params, fields map[string]any) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, action, url string, params, fields map[string]any) (string, error) {
	return f(ctx, action, url, params, fields)
}

// BulkAction runs a confirmed bulk request row by row and records the run. A
// failing row is reported in its result and does not stop the others.
func (s *Service) BulkAction(ctx context.Context, input *bulk.Request, userID string) (*bulk.Result, error) {
	slog.Info(fmt.Sprintf("%s - action=%s rows=%d", bulkLogPrefix, input.Action, len(input.Rows)))

	if input.Action == "" {
		return nil, NewError(CodeInvalidArgument, "action is required")
	}
	if len(input.Rows) == 0 {
		return nil, NewError(CodeInvalidArgument, "at least one row is required")
	}
	if len(input.Rows) > maxBulkRows {
		return nil, NewError(CodeInvalidArgument, fmt.Sprintf("rows count exceeds maximum %d", maxBulkRows))
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}

	runID := input.ID
	if _, err := uuid.Parse(runID); err != nil {
		runID = uuid.NewString()
	}
	payload, err := json.Marshal(map[string]any{"data": input.Data, "fields": input.Fields, "rows": input.Rows})
	if err != nil {
		return nil, NewError(CodeInvalidArgument, "bulk request is not encodable")
	}

	res := &bulk.Result{Results: make([]bulk.RowResult, 0, len(input.Rows))}
	succeeded, failed := 0, 0
	for i, row := range input.Rows {
		msg, err := s.executor.Execute(ctx, input.Action, input.URL, RowParams(row, input.Data), input.Fields)
		rr := bulk.RowResult{Index: i, Message: msg}
		if err != nil {
			rr.Error = err.Error()
			failed++
		} else {
			succeeded++
		}
		res.Results = append(res.Results, rr)
	}

	results, err := json.Marshal(res.Results)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Message: "Failed to encode bulk results"}
	}
	if err := s.store.InsertBulkRun(ctx, db.BulkActionRun{
		ID:        runID,
		Action:    input.Action,
		URL:       input.URL,
		RowCount:  len(input.Rows),
		Succeeded: succeeded,
		Failed:    failed,
		Payload:   payload,
		Results:   results,
		CreatedBy: userID,
	}); err != nil {
		slog.Error(fmt.Sprintf("%s - InsertBulkRun failed: %v", bulkLogPrefix, err))
		return nil, &Error{Code: CodeInternal, Message: "Failed to record bulk action"}
	}

	s.metrics.ObserveBulk(input.Action, succeeded, failed)
	s.publish(ctx, &events.ConfigChangedEvent{Kind: events.KindBulk, ID: runID, UserID: userID})
	slog.Info(fmt.Sprintf("%s - run %s done succeeded=%d failed=%d", bulkLogPrefix, runID, succeeded, failed))
	return res, nil
}

// RowParams maps a row onto request parameters: each data entry names a
// parameter and the row property supplying it. Without data the whole row is
// passed.
func RowParams(row bulk.Row, data map[string]string) map[string]any {
	if len(data) == 0 {
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(data))
	for param, prop := range data {
		if v, ok := row[prop]; ok {
			out[param] = v
		} else {
			out[param] = prop
		}
	}
	return out
}

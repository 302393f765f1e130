// Package client is the console's request/reply client over COMMS. It
// implements the collaborators the engine talks to: catalog.Fetcher,
// session.Backend, bulk.Submitter and mapping.Backend.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/standards-console/pkg/bulk"
	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/commsutil"
	"github.com/morezero/standards-console/pkg/events"
	"github.com/morezero/standards-console/pkg/formstate"
	"github.com/morezero/standards-console/pkg/instance"
	"github.com/morezero/standards-console/pkg/mapping"
)

const (
	logPrefix      = "client:client"
	defaultTimeout = 10 * time.Second
)

// Options configures a Client. Zero values use defaults.
type Options struct {
	// Subject is the console request subject (CONSOLE_SUBJECT).
	Subject string
	// Timeout bounds a request when ctx carries no deadline.
	Timeout  time.Duration
	UserID   string
	TenantID string
}

// Client sends console requests over a COMMS connection.
type Client struct {
	nc       *comms.Conn
	subject  string
	timeout  time.Duration
	userID   string
	tenantID string
}

// New creates a Client on nc. Pass nil for opts to use defaults.
func New(nc *comms.Conn, opts *Options) *Client {
	c := &Client{nc: nc, subject: commsutil.SubjectConsole, timeout: defaultTimeout}
	if opts != nil {
		if opts.Subject != "" {
			c.subject = opts.Subject
		}
		if opts.Timeout > 0 {
			c.timeout = opts.Timeout
		}
		c.userID = opts.UserID
		c.tenantID = opts.TenantID
	}
	return c
}

// call sends method with params and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	var raw []byte
	if params != nil {
		var err error
		if raw, err = commsutil.EncodePayload(params); err != nil {
			return fmt.Errorf("%s - encode %s params: %w", logPrefix, method, err)
		}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	timeoutMs := 0
	if dl, ok := ctx.Deadline(); ok {
		timeoutMs = int(time.Until(dl).Milliseconds())
	}

	id := uuid.NewString()
	data, err := commsutil.EncodePayload(&commsutil.Request{
		ID:     id,
		Type:   "invoke",
		Method: method,
		Params: raw,
		Ctx: &commsutil.InvocationContext{
			TenantID:  c.tenantID,
			UserID:    c.userID,
			RequestID: id,
			TimeoutMs: timeoutMs,
		},
	})
	if err != nil {
		return fmt.Errorf("%s - encode %s request: %w", logPrefix, method, err)
	}

	slog.Debug(fmt.Sprintf("%s - %s id=%s", logPrefix, method, id))
	msg, err := c.nc.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, comms.ErrTimeout) {
			return fmt.Errorf("%s - %s timed out: %w", logPrefix, method, err)
		}
		return fmt.Errorf("%s - %s failed: %w", logPrefix, method, err)
	}
	return commsutil.DecodeResponse(msg.Data, out)
}

// FetchSchemas fetches the standards catalog.
func (c *Client) FetchSchemas(ctx context.Context) (*catalog.Snapshot, error) {
	var snap catalog.Snapshot
	if err := c.call(ctx, commsutil.MethodListStandards, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// FetchFieldOptions fetches the selectable options of a standard's fields.
func (c *Client) FetchFieldOptions(ctx context.Context, schemaID string) ([]catalog.FieldOption, error) {
	var out []catalog.FieldOption
	err := c.call(ctx, commsutil.MethodListFieldOptions, &commsutil.ListFieldOptionsInput{SchemaID: schemaID}, &out)
	return out, err
}

// SaveTemplate saves tpl and returns its id.
func (c *Client) SaveTemplate(ctx context.Context, tpl instance.Template) (string, error) {
	var out commsutil.SaveTemplateOutput
	if err := c.call(ctx, commsutil.MethodSaveTemplate, &tpl, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// GetTemplate fetches a saved template.
func (c *Client) GetTemplate(ctx context.Context, id string) (*instance.Template, error) {
	var out instance.Template
	if err := c.call(ctx, commsutil.MethodGetTemplate, &commsutil.GetTemplateInput{ID: id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit sends a confirmed bulk action.
func (c *Client) Submit(ctx context.Context, req bulk.Request) (*bulk.Result, error) {
	var out bulk.Result
	if err := c.call(ctx, commsutil.MethodBulkAction, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchFieldMapping fetches the field mapping catalog of an extension.
func (c *Client) FetchFieldMapping(ctx context.Context, extension string) (*mapping.Response, error) {
	var out mapping.Response
	if err := c.call(ctx, commsutil.MethodGetFieldMapping, &commsutil.GetFieldMappingInput{Extension: extension}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveFieldMapping replaces the mappings of an extension.
func (c *Client) SaveFieldMapping(ctx context.Context, extension string, mappings map[string]formstate.Option) error {
	return c.call(ctx, commsutil.MethodSaveFieldMapping, &commsutil.SaveFieldMappingInput{
		Extension: extension,
		Mappings:  mappings,
	}, nil)
}

// Health queries the service health.
func (c *Client) Health(ctx context.Context) (*commsutil.HealthOutput, error) {
	var out commsutil.HealthOutput
	if err := c.call(ctx, commsutil.MethodHealth, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WatchChanges calls fn for every configuration change published by the
// service, e.g. to refetch a template another operator saved. Unsubscribe the
// returned subscription to stop.
func (c *Client) WatchChanges(fn func(*events.ConfigChangedEvent)) (*comms.Subscription, error) {
	return events.Subscribe(c.nc, "", fn)
}

// Package mapping maps an external integration's fields onto the console's own
// field set. It is the single-instance form of the configuration engine: one
// store entry per console field, holding the chosen integration field.
package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/formstate"
)

const logPrefix = "mapping:mapping"

// Header groups console fields sharing a FieldType.
type Header struct {
	Title       string `json:"Title"`
	Description string `json:"Description,omitempty"`
	FieldType   string `json:"FieldType"`
}

// Field is a console field that can be mapped.
type Field struct {
	FieldName  string `json:"FieldName"`
	FieldLabel string `json:"FieldLabel"`
	FieldType  string `json:"FieldType"`
	Type       string `json:"Type,omitempty"`
}

// Mapping is a saved mapping row.
type Mapping struct {
	RowKey          string `json:"RowKey"`
	IntegrationName string `json:"IntegrationName"`
	IntegrationID   any    `json:"IntegrationId"`
}

// Response is the field mapping catalog for one extension.
type Response struct {
	CIPPFieldHeaders  []Header              `json:"CIPPFieldHeaders"`
	CIPPFields        []Field               `json:"CIPPFields"`
	IntegrationFields []catalog.FieldOption `json:"IntegrationFields"`
	Mappings          []Mapping             `json:"Mappings"`
}

// Group is a header with the fields it covers, in response order.
type Group struct {
	Header Header
	Fields []Field
}

// Groups matches fields to headers by equal FieldType. Fields without a header are not shown.
func (r *Response) Groups() []Group {
	out := make([]Group, 0, len(r.CIPPFieldHeaders))
	for _, h := range r.CIPPFieldHeaders {
		g := Group{Header: h}
		for _, f := range r.CIPPFields {
			if f.FieldType == h.FieldType {
				g.Fields = append(g.Fields, f)
			}
		}
		out = append(out, g)
	}
	return out
}

// OptionsFor returns the integration fields selectable for f.
func (r *Response) OptionsFor(f Field) []formstate.Option {
	return catalog.FilterOptions(r.IntegrationFields, catalog.Field{
		Name:      f.FieldName,
		Type:      catalog.FieldType(f.Type),
		FieldType: f.FieldType,
	})
}

// Form holds the mapping values of one extension.
type Form struct {
	store  *formstate.Store
	fields []Field
	known  map[string]bool
}

// NewForm creates a Form over store.
func NewForm(store *formstate.Store) *Form {
	return &Form{store: store, known: map[string]bool{}}
}

// Load replaces the form with the server mappings.
func (f *Form) Load(resp *Response) {
	f.fields = append([]Field(nil), resp.CIPPFields...)
	f.known = make(map[string]bool, len(f.fields))
	for _, fld := range f.fields {
		f.known[fld.FieldName] = true
	}

	state := make(map[string]any, len(resp.Mappings))
	for _, m := range resp.Mappings {
		state[m.RowKey] = formstate.Option{Label: m.IntegrationName, Value: m.IntegrationID}
	}
	f.store.Reset(state)
}

// Set maps a console field to an integration field.
func (f *Form) Set(fieldName string, opt formstate.Option) error {
	if !f.known[fieldName] {
		return fmt.Errorf("%s - unknown field %q", logPrefix, fieldName)
	}
	return f.store.Set(fieldName, opt)
}

// Clear removes the mapping of a console field.
func (f *Form) Clear(fieldName string) {
	f.store.Delete(fieldName)
}

// Get returns the current mapping of a field.
func (f *Form) Get(fieldName string) (formstate.Option, bool) {
	v, ok := f.store.Get(fieldName)
	if !ok || !formstate.IsNonEmpty(v) {
		return formstate.Option{}, false
	}
	return toOption(v)
}

// Missing lists fields without a mapping, in field order.
func (f *Form) Missing() []string {
	var out []string
	for _, fld := range f.fields {
		if _, ok := f.Get(fld.FieldName); !ok {
			out = append(out, fld.FieldName)
		}
	}
	return out
}

// Payload returns every mapped field for submission.
func (f *Form) Payload() map[string]formstate.Option {
	out := map[string]formstate.Option{}
	for _, fld := range f.fields {
		if opt, ok := f.Get(fld.FieldName); ok {
			out[fld.FieldName] = opt
		}
	}
	return out
}

func toOption(v any) (formstate.Option, bool) {
	switch t := v.(type) {
	case formstate.Option:
		return t, true
	case *formstate.Option:
		if t == nil {
			return formstate.Option{}, false
		}
		return *t, true
	case map[string]any:
		label, _ := t["label"].(string)
		return formstate.Option{Label: label, Value: t["value"]}, true
	case string:
		return formstate.Option{Label: t, Value: t}, true
	}
	return formstate.Option{}, false
}

// Backend is the collaborator that serves and stores field mappings.
type Backend interface {
	FetchFieldMapping(ctx context.Context, extension string) (*Response, error)
	SaveFieldMapping(ctx context.Context, extension string, mappings map[string]formstate.Option) error
}

// Editor loads, edits and saves the mapping of one extension.
type Editor struct {
	mu        sync.Mutex
	backend   Backend
	extension string
	form      *Form
	resp      *Response
	lastErr   error
}

// NewEditor creates an Editor for extension.
func NewEditor(backend Backend, extension string) *Editor {
	return &Editor{
		backend:   backend,
		extension: extension,
		form:      NewForm(formstate.NewStore()),
	}
}

// Form returns the editable form.
func (e *Editor) Form() *Form { return e.form }

// Response returns the last successfully fetched response.
func (e *Editor) Response() *Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resp
}

// Err returns the last fetch or save failure.
func (e *Editor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Load fetches the mapping catalog and resets the form to it. On failure the
// previous form contents are kept.
func (e *Editor) Load(ctx context.Context) error {
	resp, err := e.backend.FetchFieldMapping(ctx, e.extension)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lastErr = fmt.Errorf("%s - fetch %s: %w", logPrefix, e.extension, err)
		slog.Warn(e.lastErr.Error())
		return e.lastErr
	}
	e.resp = resp
	e.lastErr = nil
	e.form.Load(resp)
	slog.Debug(fmt.Sprintf("%s - loaded %s fields=%d mappings=%d", logPrefix, e.extension, len(resp.CIPPFields), len(resp.Mappings)))
	return nil
}

// Submit posts the whole form, then refetches so the form shows server state.
func (e *Editor) Submit(ctx context.Context) error {
	payload := e.form.Payload()
	if err := e.backend.SaveFieldMapping(ctx, e.extension, payload); err != nil {
		e.mu.Lock()
		e.lastErr = fmt.Errorf("%s - save %s: %w", logPrefix, e.extension, err)
		e.mu.Unlock()
		return e.lastErr
	}
	slog.Info(fmt.Sprintf("%s - saved %d mappings for %s", logPrefix, len(payload), e.extension))
	return e.Load(ctx)
}

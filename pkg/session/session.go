// Package session composes the configuration engine: the schema catalog, the
// instance registry, the form state store, the completeness evaluator and the
// bulk dispatcher, plus the asynchronous loads that feed them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/morezero/standards-console/pkg/actions"
	"github.com/morezero/standards-console/pkg/bulk"
	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/completeness"
	"github.com/morezero/standards-console/pkg/formstate"
	"github.com/morezero/standards-console/pkg/instance"
	"github.com/morezero/standards-console/pkg/settings"
)

const logPrefix = "session:session"

var (
	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("session closed")
	// ErrStale is returned by a load whose result was superseded by a newer load.
	ErrStale = errors.New("stale result discarded")
	// ErrNotActive is returned when editing an instance that is not active.
	ErrNotActive = errors.New("instance not active")
	// ErrActionDisabled is returned when setting an action the schema disables.
	ErrActionDisabled = errors.New("action disabled for schema")
)

// FetchError reports a failed catalog, options or template fetch.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IncompleteError lists the instances that block a submit.
type IncompleteError struct {
	Keys []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d incomplete instance(s): %s", len(e.Keys), strings.Join(e.Keys, ", "))
}

// Status is the load state of a Session.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Backend is the server collaborator of a Session.
type Backend interface {
	catalog.Fetcher
	SaveTemplate(ctx context.Context, tpl instance.Template) (string, error)
	GetTemplate(ctx context.Context, id string) (*instance.Template, error)
}

// Options configures the optional collaborators of a Session.
type Options struct {
	Confirmer   bulk.Confirmer
	Submitter   bulk.Submitter
	Preferences *settings.Preferences
}

// schemaRef is the SchemaSource shared by the registry and the evaluator. A
// reload swaps the catalog in one step.
type schemaRef struct {
	p atomic.Pointer[catalog.Catalog]
}

func (r *schemaRef) Find(id string) (catalog.Schema, bool) {
	c := r.p.Load()
	if c == nil {
		return catalog.Schema{}, false
	}
	return c.Find(id)
}

// Session is one operator's editing session.
type Session struct {
	backend Backend
	schemas *schemaRef
	store   *formstate.Store
	eval    *completeness.Evaluator
	bulk    *bulk.Dispatcher
	prefs   *settings.Preferences

	mu        sync.Mutex
	registry  *instance.Registry
	status    Status
	lastErr   error
	loadToken uint64
	tplToken  uint64
	closed    bool
	template  instance.Template
	options   map[string][]catalog.FieldOption
}

// New creates a Session over backend. Nothing is fetched until Load.
func New(backend Backend, opts Options) *Session {
	ref := &schemaRef{}
	store := formstate.NewStore()
	prefs := opts.Preferences
	if prefs == nil {
		prefs = settings.NewPreferences(settings.NewMemoryStore())
	}
	return &Session{
		backend:  backend,
		schemas:  ref,
		store:    store,
		eval:     completeness.New(ref, store),
		bulk:     bulk.NewDispatcher(opts.Confirmer, opts.Submitter),
		prefs:    prefs,
		registry: instance.NewRegistry(ref),
		options:  map[string][]catalog.FieldOption{},
	}
}

// Load fetches the schema catalog and swaps it in. Results of a load that was
// superseded by a newer one, or that completes after Close, are discarded.
// On failure the previous catalog and instances are kept.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loadToken++
	token := s.loadToken
	s.status = StatusLoading
	s.mu.Unlock()

	snap, err := s.backend.FetchSchemas(ctx)
	var next *catalog.Catalog
	if err == nil {
		next, err = catalog.New(snap)
	}

	s.mu.Lock()
	if s.closed || token != s.loadToken {
		s.mu.Unlock()
		slog.Debug(fmt.Sprintf("%s - discarding catalog load %d", logPrefix, token))
		return ErrStale
	}
	if err != nil {
		s.status = StatusError
		s.lastErr = &FetchError{Op: "schemas", Err: err}
		s.mu.Unlock()
		slog.Warn(fmt.Sprintf("%s - catalog load failed, keeping previous catalog: %v", logPrefix, err))
		return s.lastErr
	}
	if prev := s.schemas.p.Load(); !next.Supersedes(prev) {
		s.status = StatusReady
		s.mu.Unlock()
		slog.Warn(fmt.Sprintf("%s - ignoring catalog %s older than %s", logPrefix, next.Version(), prev.Version()))
		return nil
	}

	s.schemas.p.Store(next)
	s.options = map[string][]catalog.FieldOption{}
	var orphans []string
	for _, k := range s.registry.ListActive() {
		if _, ok := next.FindByInstanceKey(k); !ok {
			s.registry.Remove(k)
			orphans = append(orphans, k)
		}
	}
	s.status = StatusReady
	s.lastErr = nil
	s.mu.Unlock()

	s.dropInstances(orphans)
	s.eval.Revalidate()
	slog.Info(fmt.Sprintf("%s - loaded catalog %s with %d schemas, dropped %d orphaned instances", logPrefix, next.Version(), next.Len(), len(orphans)))
	return nil
}

func (s *Session) dropInstances(keys []string) {
	for _, k := range keys {
		s.eval.Untrack(k)
		s.store.Delete(k)
	}
}

// Status returns the load status and the last fetch error.
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

// Catalog returns the current catalog, nil before the first successful load.
func (s *Session) Catalog() *catalog.Catalog {
	return s.schemas.p.Load()
}

// Store exposes the form state store for rendering.
func (s *Session) Store() *formstate.Store { return s.store }

// Bulk returns the bulk dispatcher of the session.
func (s *Session) Bulk() *bulk.Dispatcher { return s.bulk }

// Preferences returns the route-keyed preferences of the session.
func (s *Session) Preferences() *settings.Preferences { return s.prefs }

// OnCompletenessChange registers fn to observe completeness flips.
func (s *Session) OnCompletenessChange(fn func(key string, complete bool)) {
	s.eval.OnChange(fn)
}

// Add activates an instance of schemaID and returns its key. Adding a
// non-multiple schema that is already active returns the existing key.
func (s *Session) Add(schemaID string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	key, added, err := s.registry.Add(schemaID)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if added {
		s.eval.Track(key)
	}
	return key, nil
}

// Remove deactivates key and clears its values.
func (s *Session) Remove(key string) bool {
	s.mu.Lock()
	removed := s.registry.Remove(key)
	s.mu.Unlock()
	if removed {
		s.dropInstances([]string{key})
	}
	return removed
}

// Active returns the active instance keys in insertion order.
func (s *Session) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.ListActive()
}

// Set writes a field of an active instance.
func (s *Session) Set(key, field string, value formstate.Value) error {
	s.mu.Lock()
	active := s.registry.Has(key)
	s.mu.Unlock()
	if !active {
		return fmt.Errorf("%s - %w: %s", logPrefix, ErrNotActive, key)
	}

	schema, ok := s.schemas.Find(catalog.SchemaID(key))
	if ok && field == catalog.DefaultRequiredField && schema.Required() == catalog.DefaultRequiredField {
		if v, ok := actions.ValueOf(value); ok && !actions.Allowed(schema.DisabledFeatures, v) {
			return fmt.Errorf("%s - %w: %s on %s", logPrefix, ErrActionDisabled, v, key)
		}
	}
	return s.store.Set(key+"."+field, value)
}

// Get reads a field of an instance.
func (s *Session) Get(key, field string) (formstate.Value, bool) {
	return s.store.Get(key + "." + field)
}

// Complete reports whether key is fully configured.
func (s *Session) Complete(key string) bool {
	return s.eval.IsComplete(key)
}

// Results returns the completeness of every active, known instance.
func (s *Session) Results() map[string]bool {
	return s.eval.Results()
}

// Available returns the actions selectable on key.
func (s *Session) Available(key string) []actions.Action {
	schema, ok := s.schemas.Find(catalog.SchemaID(key))
	if !ok {
		return nil
	}
	return actions.Available(schema.DisabledFeatures)
}

// FieldOptions returns the options selectable for a field of key, fetching the
// schema's options once per catalog.
func (s *Session) FieldOptions(ctx context.Context, key, field string) ([]formstate.Option, error) {
	id := catalog.SchemaID(key)
	schema, ok := s.schemas.Find(id)
	if !ok {
		return nil, fmt.Errorf("%s - %w: %s", logPrefix, instance.ErrUnknownSchema, id)
	}
	var target catalog.Field
	found := false
	for _, f := range schema.SubFields {
		if f.Name == field {
			target, found = f, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%s - schema %s has no field %s", logPrefix, id, field)
	}
	if kind, ok := target.Type.Kind(); !ok || !kind.Selectable {
		return nil, fmt.Errorf("%s - field %s of %s is not selectable", logPrefix, field, id)
	}
	if len(target.Options) > 0 {
		return catalog.FilterOptions(target.Options, target), nil
	}

	s.mu.Lock()
	opts, cached := s.options[id]
	token := s.loadToken
	s.mu.Unlock()
	if !cached {
		fetched, err := s.backend.FetchFieldOptions(ctx, id)
		s.mu.Lock()
		if s.closed || token != s.loadToken {
			s.mu.Unlock()
			slog.Debug(fmt.Sprintf("%s - discarding options of %s fetched for load %d", logPrefix, id, token))
			return nil, ErrStale
		}
		if err != nil {
			s.mu.Unlock()
			return nil, &FetchError{Op: "options " + id, Err: err}
		}
		s.options[id] = fetched
		s.mu.Unlock()
		opts = fetched
	}
	return catalog.FilterOptions(opts, target), nil
}

// Template captures the current configuration.
func (s *Session) Template() instance.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl := instance.Capture(s.registry, s.store)
	tpl.ID = s.template.ID
	tpl.Name = s.template.Name
	tpl.Revision = s.template.Revision
	return tpl
}

// Rename sets the name used by the next submit.
func (s *Session) Rename(name string) {
	s.mu.Lock()
	s.template.Name = name
	s.mu.Unlock()
}

// LoadSaved replaces the configuration with tpl. Instances whose schema is not
// in the catalog are left out together with their values. It supersedes any
// Open or Submit still waiting for its template.
func (s *Session) LoadSaved(tpl instance.Template) error {
	return s.loadSaved(tpl, 0)
}

// beginFetch starts a template fetch and returns its token.
func (s *Session) beginFetch() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.tplToken++
	return s.tplToken, nil
}

// loadSaved applies tpl unless token is set and a newer template fetch or
// load started since.
func (s *Session) loadSaved(tpl instance.Template, token uint64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if token != 0 && token != s.tplToken {
		s.mu.Unlock()
		slog.Debug(fmt.Sprintf("%s - discarding template %s fetched by %d", logPrefix, tpl.ID, token))
		return ErrStale
	}
	s.tplToken++
	previous := s.registry.ListActive()
	s.registry.Clear()
	known, orphans := tpl.Partition(s.schemas)
	var restored []string
	for _, k := range known {
		if s.registry.Restore(k) {
			restored = append(restored, k)
		}
	}
	s.template = instance.Template{ID: tpl.ID, Name: tpl.Name, Revision: tpl.Revision}
	s.mu.Unlock()

	for _, k := range previous {
		s.eval.Untrack(k)
	}
	s.store.Reset(tpl.Values)
	for _, k := range orphans {
		s.store.Delete(k)
	}
	for _, k := range restored {
		s.eval.Track(k)
	}
	s.eval.Revalidate()

	if len(orphans) > 0 {
		slog.Warn(fmt.Sprintf("%s - template %s: skipped unknown instances %v", logPrefix, tpl.ID, orphans))
	}
	return nil
}

// Submit saves the configuration, then refetches it and resets the session to
// the server copy. Incomplete instances block the submit without changing anything.
func (s *Session) Submit(ctx context.Context) error {
	if incomplete := s.eval.Incomplete(); len(incomplete) > 0 {
		return &IncompleteError{Keys: incomplete}
	}
	token, err := s.beginFetch()
	if err != nil {
		return err
	}

	tpl := s.Template()
	id, err := s.backend.SaveTemplate(ctx, tpl)
	if err != nil {
		derr := &bulk.DispatchError{Action: "saveTemplate", Row: -1, Err: err}
		s.fail(derr)
		return derr
	}
	slog.Info(fmt.Sprintf("%s - saved template %s with %d instances", logPrefix, id, len(tpl.Keys)))

	saved, err := s.backend.GetTemplate(ctx, id)
	if err != nil {
		return s.failFetch(token, &FetchError{Op: "template " + id, Err: err})
	}
	return s.loadSaved(*saved, token)
}

// Open fetches a saved template and loads it. When a later Open, Submit or
// LoadSaved starts before the fetch returns, the fetched template is discarded
// and ErrStale is returned.
func (s *Session) Open(ctx context.Context, id string) error {
	token, err := s.beginFetch()
	if err != nil {
		return err
	}
	tpl, err := s.backend.GetTemplate(ctx, id)
	if err != nil {
		return s.failFetch(token, &FetchError{Op: "template " + id, Err: err})
	}
	return s.loadSaved(*tpl, token)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.status = StatusError
	s.lastErr = err
	s.mu.Unlock()
	slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
}

// failFetch records err unless the template fetch of token was superseded.
func (s *Session) failFetch(token uint64, err error) error {
	s.mu.Lock()
	stale := s.closed || token != s.tplToken
	s.mu.Unlock()
	if stale {
		return ErrStale
	}
	s.fail(err)
	return err
}

// Close discards in-flight results and drops every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.loadToken++
	s.tplToken++
	s.mu.Unlock()
	s.eval.Close()
}

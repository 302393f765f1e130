package console

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/db"
	"github.com/morezero/standards-console/pkg/events"
)

const consoleTestPrefix = "console:service_test"

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu           sync.Mutex
	version      string
	schemas      []db.StandardSchema
	integrations map[string]*db.IntegrationExtension
	mappings     map[string][]db.FieldMapping
	templates    map[string]*db.StandardTemplate
	runs         []db.BulkActionRun
	failWrites   error
	pingErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		integrations: map[string]*db.IntegrationExtension{},
		mappings:     map[string][]db.FieldMapping{},
		templates:    map[string]*db.StandardTemplate{},
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) ListSchemas(context.Context) (string, []db.StandardSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, append([]db.StandardSchema(nil), f.schemas...), nil
}

func (f *fakeStore) GetIntegration(_ context.Context, ext string) (*db.IntegrationExtension, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.integrations[ext], nil
}

func (f *fakeStore) ListFieldMappings(_ context.Context, ext string) ([]db.FieldMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.FieldMapping(nil), f.mappings[ext]...), nil
}

func (f *fakeStore) ReplaceFieldMappings(_ context.Context, ext string, rows []db.FieldMapping, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	f.mappings[ext] = append([]db.FieldMapping(nil), rows...)
	return nil
}

func (f *fakeStore) UpsertTemplate(_ context.Context, p db.UpsertTemplateParams) (*db.StandardTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	t, ok := f.templates[id]
	if !ok {
		t = &db.StandardTemplate{ID: id, CreatedBy: p.UserID}
		f.templates[id] = t
	}
	t.Revision++
	t.Name, t.Instances, t.Values, t.ModifiedBy = p.Name, p.Instances, p.Values, p.UserID
	cp := *t
	return &cp, nil
}

func (f *fakeStore) GetTemplate(_ context.Context, id string) (*db.StandardTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) InsertBulkRun(_ context.Context, run db.BulkActionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	f.runs = append(f.runs, run)
	return nil
}

// seedCatalog stores snap the way db.Seed does.
func (f *fakeStore) seedCatalog(t *testing.T, snap *catalog.Snapshot) {
	t.Helper()
	rows, err := db.SchemaRows(snap)
	if err != nil {
		t.Fatalf("%s - SchemaRows failed: %v", consoleTestPrefix, err)
	}
	f.version = snap.Version
	f.schemas = nil
	for i, r := range rows {
		f.schemas = append(f.schemas, db.StandardSchema{ID: r.ID, Position: i, Definition: r.Definition, CatalogVersion: snap.Version})
	}
}

func (f *fakeStore) seedIntegration(t *testing.T, name string, headers, fields, options any) {
	t.Helper()
	enc := func(v any) []byte {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("%s - marshal failed: %v", consoleTestPrefix, err)
		}
		return b
	}
	f.integrations[name] = &db.IntegrationExtension{
		Extension:         name,
		Headers:           enc(headers),
		Fields:            enc(fields),
		IntegrationFields: enc(options),
	}
}

func testSnapshot() *catalog.Snapshot {
	return &catalog.Snapshot{
		Version: "2.0.0",
		Schemas: []catalog.Schema{
			{
				ID:               "standards.EnableMFA",
				Label:            "Require MFA",
				DisabledFeatures: map[string]bool{"remediate": true},
			},
			{
				ID:       "standards.IntuneTemplate",
				Label:    "Intune template",
				Multiple: true,
				SubFields: []catalog.Field{
					{
						Name: "TemplateList", Type: catalog.FieldAutoComplete, FieldType: "Templates",
						Options: []catalog.FieldOption{{Label: "Baseline", Value: "b1"}, {Label: "Strict", Value: "s1", Type: "select"}},
					},
					{
						Name: "AssignTo", Type: catalog.FieldSelect,
						Options: []catalog.FieldOption{{Label: "All users", Value: "allLicensedUsers"}},
					},
				},
			},
		},
	}
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.ConfigChangedEvent
}

func (p *recordingPublisher) PublishChanged(_ context.Context, e *events.ConfigChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *recordingPublisher) {
	t.Helper()
	store := newFakeStore()
	store.seedCatalog(t, testSnapshot())
	pub := &recordingPublisher{}
	return NewService(Params{Store: store, Publisher: pub}), store, pub
}

func requireCode(t *testing.T, err error, code string) *Error {
	t.Helper()
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("%s - expected *Error with code %s, got %v", consoleTestPrefix, code, err)
	}
	if cerr.Code != code {
		t.Fatalf("%s - code = %s, want %s (%s)", consoleTestPrefix, cerr.Code, code, cerr.Message)
	}
	return cerr
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/standards-console/pkg/bulk"
	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/commsutil"
	"github.com/morezero/standards-console/pkg/console"
	"github.com/morezero/standards-console/pkg/db"
	"github.com/morezero/standards-console/pkg/dispatcher"
	"github.com/morezero/standards-console/pkg/events"
	"github.com/morezero/standards-console/pkg/formstate"
	"github.com/morezero/standards-console/pkg/mapping"
	"github.com/morezero/standards-console/pkg/session"
)

const (
	clientTestPrefix = "client:client_test"
	testSubject      = "console.test.v1"
)

var (
	_ catalog.Fetcher = (*Client)(nil)
	_ session.Backend = (*Client)(nil)
	_ bulk.Submitter  = (*Client)(nil)
	_ mapping.Backend = (*Client)(nil)
	_ console.Store   = (*memStore)(nil)
)

// memStore keeps templates, mappings and bulk runs in memory. The schema
// catalog is always empty, so the service serves its fallback.
type memStore struct {
	mu           sync.Mutex
	integrations map[string]*db.IntegrationExtension
	mappings     map[string][]db.FieldMapping
	templates    map[string]*db.StandardTemplate
	runs         []db.BulkActionRun
}

func newMemStore() *memStore {
	return &memStore{
		integrations: map[string]*db.IntegrationExtension{},
		mappings:     map[string][]db.FieldMapping{},
		templates:    map[string]*db.StandardTemplate{},
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) ListSchemas(context.Context) (string, []db.StandardSchema, error) {
	return "", nil, nil
}

func (m *memStore) GetIntegration(_ context.Context, ext string) (*db.IntegrationExtension, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.integrations[ext], nil
}

func (m *memStore) ListFieldMappings(_ context.Context, ext string) ([]db.FieldMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]db.FieldMapping(nil), m.mappings[ext]...), nil
}

func (m *memStore) ReplaceFieldMappings(_ context.Context, ext string, rows []db.FieldMapping, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[ext] = rows
	return nil
}

func (m *memStore) UpsertTemplate(_ context.Context, p db.UpsertTemplateParams) (*db.StandardTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	t, ok := m.templates[id]
	if !ok {
		t = &db.StandardTemplate{ID: id}
		m.templates[id] = t
	}
	t.Revision++
	t.Name, t.Instances, t.Values = p.Name, p.Instances, p.Values
	cp := *t
	return &cp, nil
}

func (m *memStore) GetTemplate(_ context.Context, id string) (*db.StandardTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) InsertBulkRun(_ context.Context, run db.BulkActionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

type testEnv struct {
	nc       *comms.Conn
	client   *Client
	store    *memStore
	mu       sync.Mutex
	captured []*events.ConfigChangedEvent
}

func (e *testEnv) published() []*events.ConfigChangedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*events.ConfigChangedEvent(nil), e.captured...)
}

// setupEnv starts an embedded COMMS server and serves the console on testSubject
// the way the server does.
func setupEnv(t *testing.T, port int) *testEnv {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", clientTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", clientTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", clientTestPrefix, err)
	}

	env := &testEnv{nc: nc, store: newMemStore()}
	pub := events.NewCallbackPublisher(func(_ context.Context, e *events.ConfigChangedEvent) error {
		env.mu.Lock()
		env.captured = append(env.captured, e)
		env.mu.Unlock()
		return nil
	})
	disp := dispatcher.NewDispatcher(console.NewService(console.Params{Store: env.store, Publisher: pub}), nil)

	_, err = nc.Subscribe(testSubject, func(msg *comms.Msg) {
		var req commsutil.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			data, _ := json.Marshal(&commsutil.Response{
				Ok:    false,
				Error: &commsutil.ErrorDetail{Code: "INVALID_REQUEST", Message: "Failed to decode request"},
			})
			_ = msg.Respond(data)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		data, _ := json.Marshal(disp.Dispatch(ctx, &req))
		_ = msg.Respond(data)
	})
	if err != nil {
		nc.Close()
		ns.Shutdown()
		t.Fatalf("%s - failed to subscribe: %v", clientTestPrefix, err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	env.client = New(nc, &Options{Subject: testSubject, Timeout: 5 * time.Second, UserID: "admin"})
	return env
}

func TestClient_FetchSchemas(t *testing.T) {
	env := setupEnv(t, 14250)

	snap, err := env.client.FetchSchemas(context.Background())
	if err != nil {
		t.Fatalf("%s - FetchSchemas failed: %v", clientTestPrefix, err)
	}
	want := catalog.DefaultSnapshot()
	if snap.Version != want.Version || len(snap.Schemas) != len(want.Schemas) {
		t.Errorf("%s - snapshot = %s/%d, want %s/%d", clientTestPrefix, snap.Version, len(snap.Schemas), want.Version, len(want.Schemas))
	}
	if _, err := catalog.New(snap); err != nil {
		t.Errorf("%s - fetched catalog does not validate: %v", clientTestPrefix, err)
	}
}

func TestClient_RemoteError(t *testing.T) {
	env := setupEnv(t, 14251)

	_, err := env.client.FetchFieldOptions(context.Background(), "standards.Nope")
	var rerr *commsutil.RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("%s - expected RemoteError, got %v", clientTestPrefix, err)
	}
	if rerr.Code != console.CodeNotFound || rerr.Retryable {
		t.Errorf("%s - remote error = %+v", clientTestPrefix, rerr)
	}
}

func TestClient_NoResponders(t *testing.T) {
	env := setupEnv(t, 14252)
	c := New(env.nc, &Options{Subject: "console.nobody.v1", Timeout: time.Second})
	if _, err := c.Health(context.Background()); err == nil {
		t.Errorf("%s - expected error without responders", clientTestPrefix)
	}
}

func TestClient_SessionSubmitRoundTrip(t *testing.T) {
	env := setupEnv(t, 14253)
	ctx := context.Background()

	s := session.New(env.client, session.Options{Submitter: env.client})
	defer s.Close()
	if err := s.Load(ctx); err != nil {
		t.Fatalf("%s - Load failed: %v", clientTestPrefix, err)
	}

	key, err := s.Add("standards.EnableMFA")
	if err != nil {
		t.Fatalf("%s - Add failed: %v", clientTestPrefix, err)
	}
	if err := s.Set(key, "action", formstate.Option{Label: "Report", Value: "Report"}); err != nil {
		t.Fatalf("%s - Set failed: %v", clientTestPrefix, err)
	}
	s.Rename("Baseline")
	if err := s.Submit(ctx); err != nil {
		t.Fatalf("%s - Submit failed: %v", clientTestPrefix, err)
	}

	tpl := s.Template()
	if tpl.ID == "" || tpl.Revision != 1 || tpl.Name != "Baseline" {
		t.Errorf("%s - template after submit = %+v", clientTestPrefix, tpl)
	}
	if !s.Complete(key) {
		t.Errorf("%s - %s should be complete after the server reset", clientTestPrefix, key)
	}

	// A second submit updates the same template.
	if err := s.Submit(ctx); err != nil {
		t.Fatalf("%s - second Submit failed: %v", clientTestPrefix, err)
	}
	if got := s.Template(); got.ID != tpl.ID || got.Revision != 2 {
		t.Errorf("%s - resubmitted template = %+v", clientTestPrefix, got)
	}

	evs := env.published()
	if len(evs) != 2 || evs[0].Kind != events.KindTemplate || evs[0].UserID != "admin" {
		t.Errorf("%s - events = %+v", clientTestPrefix, evs)
	}
}

func TestClient_BulkSubmit(t *testing.T) {
	env := setupEnv(t, 14254)

	d := bulk.NewDispatcher(nil, env.client)
	rows := []bulk.Row{{"defaultDomainName": "a.example"}, {"defaultDomainName": "b.example"}}
	if _, err := d.Choose(rows, bulk.Action{Label: "Remove standard", URL: "/api/RemoveStandard", Data: map[string]string{"tenantFilter": "defaultDomainName"}}); err != nil {
		t.Fatalf("%s - Choose failed: %v", clientTestPrefix, err)
	}
	res, failures, err := d.Confirm(context.Background(), map[string]any{"reason": "cleanup"})
	if err != nil {
		t.Fatalf("%s - Confirm failed: %v", clientTestPrefix, err)
	}
	if len(failures) != 0 || len(res.Results) != 2 {
		t.Errorf("%s - result = %+v failures = %v", clientTestPrefix, res, failures)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if len(env.store.runs) != 1 || env.store.runs[0].RowCount != 2 {
		t.Errorf("%s - runs = %+v", clientTestPrefix, env.store.runs)
	}
}

func TestClient_FieldMappingEditor(t *testing.T) {
	env := setupEnv(t, 14255)
	env.store.integrations["Halo"] = &db.IntegrationExtension{
		Extension:         "Halo",
		Headers:           []byte(`[{"Title":"Companies","FieldType":"Companies"}]`),
		Fields:            []byte(`[{"FieldName":"TenantType","FieldLabel":"Tenant type","FieldType":"Companies"}]`),
		IntegrationFields: []byte(`[{"name":"Customer","value":1,"FieldType":"Companies"}]`),
	}
	ctx := context.Background()

	e := mapping.NewEditor(env.client, "Halo")
	if err := e.Load(ctx); err != nil {
		t.Fatalf("%s - Load failed: %v", clientTestPrefix, err)
	}
	if err := e.Form().Set("TenantType", formstate.Option{Label: "Customer", Value: 1}); err != nil {
		t.Fatalf("%s - Set failed: %v", clientTestPrefix, err)
	}
	if err := e.Submit(ctx); err != nil {
		t.Fatalf("%s - Submit failed: %v", clientTestPrefix, err)
	}
	if opt, ok := e.Form().Get("TenantType"); !ok || opt.Label != "Customer" {
		t.Errorf("%s - mapping after refetch = %+v, %v", clientTestPrefix, opt, ok)
	}
	if len(e.Form().Missing()) != 0 {
		t.Errorf("%s - missing = %v", clientTestPrefix, e.Form().Missing())
	}
}

func TestClient_WatchChanges(t *testing.T) {
	env := setupEnv(t, 14256)

	changes := make(chan *events.ConfigChangedEvent, 1)
	sub, err := env.client.WatchChanges(func(e *events.ConfigChangedEvent) { changes <- e })
	if err != nil {
		t.Fatalf("%s - WatchChanges failed: %v", clientTestPrefix, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	pub := events.NewCommsPublisher(env.nc, nil)
	if err := pub.PublishChanged(context.Background(), &events.ConfigChangedEvent{Kind: events.KindTemplate, ID: "tpl-9", Revision: 4}); err != nil {
		t.Fatalf("%s - PublishChanged failed: %v", clientTestPrefix, err)
	}

	select {
	case got := <-changes:
		if got.ID != "tpl-9" || got.Revision != 4 {
			t.Errorf("%s - change = %+v", clientTestPrefix, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for change", clientTestPrefix)
	}
}

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/morezero/standards-console/pkg/formstate"
)

const catalogTestPrefix = "catalog:catalog_test"

func testSnapshot() *Snapshot {
	return &Snapshot{
		Version: "1.2.0",
		Schemas: []Schema{
			{ID: "mfa", Label: "MFA", DisabledFeatures: map[string]bool{"remediate": true}},
			{ID: "template", Label: "Template", Multiple: true, SubFields: []Field{{Name: "templateId", Type: FieldAutoComplete}}},
		},
	}
}

func TestNew_Valid(t *testing.T) {
	c, err := New(testSnapshot())
	if err != nil {
		t.Fatalf("%s - New failed: %v", catalogTestPrefix, err)
	}
	if c.Len() != 2 {
		t.Errorf("%s - Len = %d, want 2", catalogTestPrefix, c.Len())
	}
	if c.Version() != "1.2.0" {
		t.Errorf("%s - Version = %q, want 1.2.0", catalogTestPrefix, c.Version())
	}

	ids := []string{}
	for _, s := range c.Schemas() {
		ids = append(ids, s.ID)
	}
	if diff := cmp.Diff([]string{"mfa", "template"}, ids); diff != "" {
		t.Errorf("%s - schema order mismatch (-want +got):\n%s", catalogTestPrefix, diff)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
	}{
		{"nil", nil},
		{"missing id", &Snapshot{Schemas: []Schema{{Label: "x"}}}},
		{"duplicate id", &Snapshot{Schemas: []Schema{{ID: "a"}, {ID: "a"}}}},
		{"bracket id", &Snapshot{Schemas: []Schema{{ID: "a[1]"}}}},
		{"unknown field type", &Snapshot{Schemas: []Schema{{ID: "a", SubFields: []Field{{Name: "f", Type: "slider"}}}}}},
		{"unnamed field", &Snapshot{Schemas: []Schema{{ID: "a", SubFields: []Field{{Type: FieldText}}}}}},
		{"field shadows required", &Snapshot{Schemas: []Schema{{ID: "a", SubFields: []Field{{Name: "action", Type: FieldText}}}}}},
		{"bad version", &Snapshot{Version: "one", Schemas: []Schema{{ID: "a"}}}},
		{"nested id", &Snapshot{Schemas: []Schema{{ID: "a.b"}, {ID: "a"}}}},
		{"deeply nested id", &Snapshot{Schemas: []Schema{{ID: "a.b"}, {ID: "a.b.c"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.snap); err == nil {
				t.Errorf("%s - expected error", catalogTestPrefix)
			}
		})
	}
}

func TestNew_SiblingIDs(t *testing.T) {
	c, err := New(&Snapshot{Schemas: []Schema{{ID: "std.a"}, {ID: "std.ab"}, {ID: "std.a-b"}}})
	if err != nil {
		t.Fatalf("%s - New failed: %v", catalogTestPrefix, err)
	}
	if c.Len() != 3 {
		t.Errorf("%s - len = %d, want 3", catalogTestPrefix, c.Len())
	}
}

func TestCatalog_FindIsImmutable(t *testing.T) {
	c, _ := New(testSnapshot())

	s, ok := c.Find("mfa")
	if !ok {
		t.Fatalf("%s - mfa not found", catalogTestPrefix)
	}
	s.DisabledFeatures["report"] = true
	s.ID = "changed"

	again, _ := c.Find("mfa")
	if again.DisabledFeatures["report"] || again.ID != "mfa" {
		t.Errorf("%s - catalog was mutated through a returned schema", catalogTestPrefix)
	}
}

func TestCatalog_FindByInstanceKey(t *testing.T) {
	c, _ := New(testSnapshot())

	for key, want := range map[string]string{"mfa": "mfa", "template[2]": "template"} {
		s, ok := c.FindByInstanceKey(key)
		if !ok || s.ID != want {
			t.Errorf("%s - FindByInstanceKey(%q) = %q, %v; want %q", catalogTestPrefix, key, s.ID, ok, want)
		}
	}
	if _, ok := c.FindByInstanceKey("gone[1]"); ok {
		t.Errorf("%s - expected orphaned key to miss", catalogTestPrefix)
	}
}

func TestCatalog_Supersedes(t *testing.T) {
	older, _ := New(&Snapshot{Version: "1.0.0"})
	newer, _ := New(&Snapshot{Version: "1.1.0"})
	unversioned, _ := New(&Snapshot{})

	if !newer.Supersedes(older) {
		t.Errorf("%s - 1.1.0 should supersede 1.0.0", catalogTestPrefix)
	}
	if older.Supersedes(newer) {
		t.Errorf("%s - 1.0.0 must not supersede 1.1.0", catalogTestPrefix)
	}
	if !older.Supersedes(older) {
		t.Errorf("%s - equal versions should supersede (refetch)", catalogTestPrefix)
	}
	if !unversioned.Supersedes(newer) || !newer.Supersedes(nil) {
		t.Errorf("%s - unversioned or missing catalogs always supersede", catalogTestPrefix)
	}
}

func TestSchema_RequiredAndIcon(t *testing.T) {
	if got := (Schema{}).Required(); got != "action" {
		t.Errorf("%s - Required = %q, want action", catalogTestPrefix, got)
	}
	if got := (Schema{RequiredField: "state"}).Required(); got != "state" {
		t.Errorf("%s - Required = %q, want state", catalogTestPrefix, got)
	}
	if got := (Schema{Category: "Exchange Standards"}).Icon(); got != "exchange" {
		t.Errorf("%s - Icon = %q, want exchange", catalogTestPrefix, got)
	}
	if got := (Schema{Category: "Something"}).Icon(); got != "microsoft" {
		t.Errorf("%s - Icon = %q, want microsoft", catalogTestPrefix, got)
	}
}

func TestFieldType_Kind(t *testing.T) {
	k, ok := FieldAutoComplete.Kind()
	if !ok || !k.Selectable {
		t.Errorf("%s - autoComplete should be selectable", catalogTestPrefix)
	}
	if _, ok := FieldType("slider").Kind(); ok {
		t.Errorf("%s - unknown type must have no kind", catalogTestPrefix)
	}
}

func TestFilterOptions(t *testing.T) {
	target := Field{Name: "Company", Type: "Company", FieldType: "Organization"}
	options := []FieldOption{
		{Label: "match", Value: 1, Type: "Company", FieldType: "Organization"},
		{Label: "wrong type", Value: 2, Type: "Contact", FieldType: "Organization"},
		{Label: "wrong group", Value: 3, Type: "Company", FieldType: "Billing"},
		{Label: "untyped", Value: 4, FieldType: "Billing"},
		{Label: "ungrouped", Value: 5, Type: "Contact"},
	}

	got := FilterOptions(options, target)
	want := []formstate.Option{
		{Label: "match", Value: 1},
		{Label: "untyped", Value: 4},
		{Label: "ungrouped", Value: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("%s - FilterOptions mismatch (-want +got):\n%s", catalogTestPrefix, diff)
	}
}

func TestLoadSeedFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "standards.yaml")
	content := `version: 2.0.0
standards:
  - name: standards.AuditLog
    label: Enable audit log
    cat: Global Standards
    disabledFeatures:
      remediate: true
  - name: standards.Template
    label: Template
    multiple: true
    addedComponent:
      - name: templateId
        type: autoComplete
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("%s - write seed: %v", catalogTestPrefix, err)
	}

	snap, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("%s - LoadSeedFile failed: %v", catalogTestPrefix, err)
	}
	if snap.Version != "2.0.0" || len(snap.Schemas) != 2 {
		t.Fatalf("%s - unexpected snapshot %+v", catalogTestPrefix, snap)
	}
	if !snap.Schemas[0].DisabledFeatures["remediate"] {
		t.Errorf("%s - disabledFeatures not decoded", catalogTestPrefix)
	}
	if !snap.Schemas[1].Multiple || snap.Schemas[1].SubFields[0].Type != FieldAutoComplete {
		t.Errorf("%s - sub-fields not decoded: %+v", catalogTestPrefix, snap.Schemas[1])
	}
}

func TestLoadSeedFile_JSONInvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "standards.json")
	content := `{"standards":[{"name":"a"},{"name":"a"}]}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("%s - write seed: %v", catalogTestPrefix, err)
	}

	if _, err := LoadSeedFile(path); err == nil {
		t.Errorf("%s - expected duplicate ids to be rejected", catalogTestPrefix)
	}
}

func TestLoadSeedFile_Default(t *testing.T) {
	t.Setenv("CONSOLE_SEED_FILE", "")
	snap, err := LoadSeedFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("%s - LoadSeedFile failed: %v", catalogTestPrefix, err)
	}
	if _, err := New(snap); err != nil {
		t.Errorf("%s - default catalog invalid: %v", catalogTestPrefix, err)
	}
}

package formstate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const storeTestPrefix = "formstate:store_test"

func TestStore_SetGet(t *testing.T) {
	s := NewStore()

	if err := s.Set("mfa.action", Option{Label: "Report", Value: "Report"}); err != nil {
		t.Fatalf("%s - Set failed: %v", storeTestPrefix, err)
	}

	got, ok := s.Get("mfa.action")
	if !ok {
		t.Fatalf("%s - expected mfa.action to exist", storeTestPrefix)
	}
	if diff := cmp.Diff(Option{Label: "Report", Value: "Report"}, got); diff != "" {
		t.Errorf("%s - value mismatch (-want +got):\n%s", storeTestPrefix, diff)
	}

	if _, ok := s.Get("mfa.missing"); ok {
		t.Errorf("%s - expected missing field to be absent", storeTestPrefix)
	}
	if _, ok := s.Get("other.action"); ok {
		t.Errorf("%s - expected missing instance to be absent", storeTestPrefix)
	}
}

func TestStore_DottedSchemaIDs(t *testing.T) {
	s := NewStore()
	if err := s.Set("standards.MailContacts.action", "Report"); err != nil {
		t.Fatalf("%s - Set failed: %v", storeTestPrefix, err)
	}

	v, ok := s.Get("standards.MailContacts.action")
	if !ok || v != "Report" {
		t.Errorf("%s - got %v, %v; want Report", storeTestPrefix, v, ok)
	}
}

func TestStore_InvalidPath(t *testing.T) {
	s := NewStore()
	for _, path := range []string{"", "a..b", ".a", "a."} {
		if err := s.Set(path, "x"); err == nil {
			t.Errorf("%s - Set(%q) expected error", storeTestPrefix, path)
		}
	}
}

func TestStore_DeletePrunesSubtree(t *testing.T) {
	s := NewStore()
	_ = s.Set("template[1].action", "Report")
	_ = s.Set("template[1].templateId", Option{Label: "Baseline", Value: "t-1"})
	_ = s.Set("template[2].action", "warn")

	s.Delete("template[1]")

	if _, ok := s.Get("template[1].action"); ok {
		t.Errorf("%s - expected template[1] values to be removed", storeTestPrefix)
	}
	if v, ok := s.Get("template[2].action"); !ok || v != "warn" {
		t.Errorf("%s - sibling instance lost its value: %v", storeTestPrefix, v)
	}

	s.Delete("standards.Nested.action")
	_ = s.Set("standards.Nested.action", "Report")
	s.Delete("standards.Nested.action")
	if diff := cmp.Diff(map[string]any{"template[2]": map[string]any{"action": "warn"}}, s.Snapshot()); diff != "" {
		t.Errorf("%s - snapshot mismatch after prune (-want +got):\n%s", storeTestPrefix, diff)
	}
}

func TestStore_SubscribeScoped(t *testing.T) {
	s := NewStore()

	var mfa, all []Change
	unsub := s.Subscribe("mfa", func(c Change) { mfa = append(mfa, c) })
	s.Subscribe("", func(c Change) { all = append(all, c) })

	_ = s.Set("mfa.action", "Report")
	_ = s.Set("template[1].action", "Report")
	_ = s.Set("mfaExtra.action", "Report")

	if len(mfa) != 1 || mfa[0].Path != "mfa.action" {
		t.Errorf("%s - scoped subscriber got %+v, want one change at mfa.action", storeTestPrefix, mfa)
	}
	if len(all) != 3 {
		t.Errorf("%s - global subscriber got %d changes, want 3", storeTestPrefix, len(all))
	}

	unsub()
	unsub()
	_ = s.Set("mfa.action", "warn")
	if len(mfa) != 1 {
		t.Errorf("%s - unsubscribed listener still notified", storeTestPrefix)
	}
}

func TestStore_ParentReplacementNotifiesChildren(t *testing.T) {
	s := NewStore()
	var got []Change
	s.Subscribe("standards.Sharing", func(c Change) { got = append(got, c) })

	_ = s.Set("standards", map[string]any{"Sharing": map[string]any{"action": "Report"}})

	if len(got) != 1 {
		t.Fatalf("%s - expected parent replacement to notify, got %d", storeTestPrefix, len(got))
	}
	if v, _ := s.Get("standards.Sharing.action"); v != "Report" {
		t.Errorf("%s - got %v, want Report", storeTestPrefix, v)
	}
}

func TestStore_ResetReplacesAndNotifiesOnce(t *testing.T) {
	s := NewStore()
	_ = s.Set("old.action", "Report")

	var changes []Change
	s.Subscribe("mfa", func(c Change) { changes = append(changes, c) })

	before := s.Generation()
	saved := map[string]any{"mfa": map[string]any{"action": "warn"}}
	s.Reset(saved)

	if s.Generation() != before+1 {
		t.Errorf("%s - generation = %d, want %d", storeTestPrefix, s.Generation(), before+1)
	}
	if len(changes) != 1 || !changes[0].Reset {
		t.Fatalf("%s - expected a single reset change, got %+v", storeTestPrefix, changes)
	}
	if _, ok := s.Get("old.action"); ok {
		t.Errorf("%s - reset kept stale value", storeTestPrefix)
	}

	// The store must not alias the caller's map.
	saved["mfa"].(map[string]any)["action"] = "Remediate"
	if v, _ := s.Get("mfa.action"); v != "warn" {
		t.Errorf("%s - store aliased reset input, got %v", storeTestPrefix, v)
	}
}

func TestIsNonEmpty(t *testing.T) {
	var nilOpt *Option
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"nil", nil, false},
		{"empty string", "", false},
		{"string", "Report", true},
		{"option", Option{}, true},
		{"option pointer", &Option{Label: "x"}, true},
		{"nil option pointer", nilOpt, false},
		{"false bool", false, true},
		{"zero", 0, true},
		{"empty map", map[string]any{}, true},
		{"nil string pointer", (*string)(nil), false},
		{"nil slice", []any(nil), false},
		{"nil map", map[string]any(nil), false},
		{"empty slice", []any{}, true},
		{"string pointer", new(string), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNonEmpty(tt.v); got != tt.want {
				t.Errorf("%s - IsNonEmpty(%v) = %v, want %v", storeTestPrefix, tt.v, got, tt.want)
			}
		})
	}
}

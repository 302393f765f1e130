package commsutil

import "testing"

func TestBuildChangeSubject(t *testing.T) {
	tests := []struct {
		name string
		kind string
		id   string
		want string
	}{
		{"template", "template", "0b6f5c1e", "console.changed.template.0b6f5c1e"},
		{"dotted id", "mapping", "Halo.PSA", "console.changed.mapping.Halo_PSA"},
		{"empty id", "bulk", "", "console.changed.bulk._"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildChangeSubject(tt.kind, tt.id)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildChangeSubject(%q, %q) = %q, want %q", tt.kind, tt.id, got, tt.want)
			}
		})
	}
}

func TestSafeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"standards.EnableMFA", "standards_EnableMFA"},
		{"a b*c>d", "a_b_c_d"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := SafeToken(tt.in); got != tt.want {
			t.Errorf("commsutil:subjects_test - SafeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

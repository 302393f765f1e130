// Package actions resolves which standard operations a schema permits.
package actions

import (
	"strings"

	"github.com/morezero/standards-console/pkg/formstate"
)

// Action is one standard operation.
type Action struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var (
	Report    = Action{Label: "Report", Value: "Report"}
	Alert     = Action{Label: "Alert", Value: "warn"}
	Remediate = Action{Label: "Remediate", Value: "Remediate"}
)

// Canonical returns every operation in display order.
func Canonical() []Action {
	return []Action{Report, Alert, Remediate}
}

// Available returns the canonical operations not flagged in disabled, keyed by
// the lower-cased operation value.
func Available(disabled map[string]bool) []Action {
	out := make([]Action, 0, 3)
	for _, a := range Canonical() {
		if !disabled[strings.ToLower(a.Value)] {
			out = append(out, a)
		}
	}
	return out
}

// Allowed reports whether value names an operation that disabled permits.
func Allowed(disabled map[string]bool, value string) bool {
	for _, a := range Available(disabled) {
		if a.Value == value {
			return true
		}
	}
	return false
}

// ValueOf extracts the operation value from a stored form value: a plain string,
// or a {label, value} selection in either struct or decoded-JSON form.
func ValueOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case Action:
		return t.Value, t.Value != ""
	case map[string]any:
		s, ok := t["value"].(string)
		return s, ok && s != ""
	case formstate.Option:
		s, ok := t.Value.(string)
		return s, ok && s != ""
	case *formstate.Option:
		if t == nil {
			return "", false
		}
		s, ok := t.Value.(string)
		return s, ok && s != ""
	}
	return "", false
}

// Package catalog holds the read-only schema catalog and field option catalog.
package catalog

import (
	"context"
	"strings"
)

// DefaultRequiredField is the field every standard instance must fill.
const DefaultRequiredField = "action"

// FieldType is the closed set of sub-field input kinds.
type FieldType string

const (
	FieldAutoComplete FieldType = "autoComplete"
	FieldSelect       FieldType = "select"
	FieldSwitch       FieldType = "switch"
	FieldText         FieldType = "textField"
	FieldNumber       FieldType = "number"
)

// fieldKinds is the single dispatch table keyed by type tag.
var fieldKinds = map[FieldType]FieldKind{
	FieldAutoComplete: {Input: "autocomplete", Selectable: true},
	FieldSelect:       {Input: "select", Selectable: true},
	FieldSwitch:       {Input: "checkbox"},
	FieldText:         {Input: "text"},
	FieldNumber:       {Input: "number"},
}

// FieldKind describes how a field type is presented and stored.
type FieldKind struct {
	Input string
	// Selectable fields store an Option chosen from a filtered option set.
	Selectable bool
}

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	_, ok := fieldKinds[t]
	return ok
}

// Kind returns the presentation strategy for t.
func (t FieldType) Kind() (FieldKind, bool) {
	k, ok := fieldKinds[t]
	return k, ok
}

// Field is one sub-field descriptor of a schema.
type Field struct {
	Name          string    `json:"name" yaml:"name"`
	Type          FieldType `json:"type" yaml:"type"`
	Label         string    `json:"label,omitempty" yaml:"label,omitempty"`
	OptionsSource string    `json:"api,omitempty" yaml:"api,omitempty"`
	// FieldType is the integration field grouping used by option filtering.
	FieldType string        `json:"fieldType,omitempty" yaml:"fieldType,omitempty"`
	Options   []FieldOption `json:"options,omitempty" yaml:"options,omitempty"`
}

// Schema is one configurable standard.
type Schema struct {
	ID               string          `json:"name" yaml:"name"`
	Label            string          `json:"label" yaml:"label"`
	HelpText         string          `json:"helpText,omitempty" yaml:"helpText,omitempty"`
	Category         string          `json:"cat,omitempty" yaml:"cat,omitempty"`
	Multiple         bool            `json:"multiple,omitempty" yaml:"multiple,omitempty"`
	RequiredField    string          `json:"requiredField,omitempty" yaml:"requiredField,omitempty"`
	SubFields        []Field         `json:"addedComponent,omitempty" yaml:"addedComponent,omitempty"`
	DisabledFeatures map[string]bool `json:"disabledFeatures,omitempty" yaml:"disabledFeatures,omitempty"`
}

// Required returns the name of the field that must always be filled.
func (s Schema) Required() string {
	if s.RequiredField == "" {
		return DefaultRequiredField
	}
	return s.RequiredField
}

// Icon returns the icon key for the schema category.
func (s Schema) Icon() string {
	switch s.Category {
	case "Global Standards":
		return "global"
	case "Entra (AAD) Standards":
		return "azure"
	case "Exchange Standards":
		return "exchange"
	case "Defender Standards":
		return "defender"
	case "Intune Standards":
		return "intune"
	default:
		return "microsoft"
	}
}

// FieldOption is a candidate value for a schema field.
// Empty Type or FieldType means the option applies to every field.
type FieldOption struct {
	Label     string `json:"name" yaml:"name"`
	Value     any    `json:"value" yaml:"value"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
	FieldType string `json:"FieldType,omitempty" yaml:"FieldType,omitempty"`
}

// Snapshot is the catalog as returned by a fetch.
type Snapshot struct {
	Version string   `json:"version,omitempty" yaml:"version,omitempty"`
	Schemas []Schema `json:"standards" yaml:"standards"`
}

// Fetcher is the external collaborator that supplies catalogs.
type Fetcher interface {
	FetchSchemas(ctx context.Context) (*Snapshot, error)
	FetchFieldOptions(ctx context.Context, schemaID string) ([]FieldOption, error)
}

// SchemaID returns the schema id an instance key was derived from.
// "template[2]" -> "template", "mfa" -> "mfa".
func SchemaID(instanceKey string) string {
	if i := strings.IndexByte(instanceKey, '['); i >= 0 {
		return instanceKey[:i]
	}
	return instanceKey
}

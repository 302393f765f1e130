package catalog

import (
	"fmt"
	"log/slog"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/morezero/standards-console/pkg/formstate"
)

const logPrefix = "catalog:catalog"

// Catalog is an immutable, validated set of schemas.
type Catalog struct {
	version *masterminds.Version
	order   []string
	byID    map[string]Schema
}

// New validates a snapshot and builds a Catalog from it.
func New(snap *Snapshot) (*Catalog, error) {
	if snap == nil {
		return nil, fmt.Errorf("%s - nil snapshot", logPrefix)
	}

	c := &Catalog{byID: make(map[string]Schema, len(snap.Schemas))}
	if snap.Version != "" {
		v, err := masterminds.NewVersion(snap.Version)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid catalog version %q: %w", logPrefix, snap.Version, err)
		}
		c.version = v
	}

	for i, s := range snap.Schemas {
		if err := validateSchema(s); err != nil {
			return nil, fmt.Errorf("%s - schema %d: %w", logPrefix, i, err)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("%s - duplicate schema id %q", logPrefix, s.ID)
		}
		c.byID[s.ID] = cloneSchema(s)
		c.order = append(c.order, s.ID)
	}
	// Instance values live under the instance key in a dot-separated store,
	// so one id must not be a path prefix of another.
	for _, id := range c.order {
		for i := range id {
			if id[i] != '.' {
				continue
			}
			if _, clash := c.byID[id[:i]]; clash {
				return nil, fmt.Errorf("%s - schema id %q is nested under schema id %q", logPrefix, id, id[:i])
			}
		}
	}

	slog.Debug(fmt.Sprintf("%s - built catalog version=%s schemas=%d", logPrefix, c.Version(), len(c.order)))
	return c, nil
}

func validateSchema(s Schema) error {
	if s.ID == "" {
		return fmt.Errorf("missing id")
	}
	if strings.ContainsAny(s.ID, "[]") {
		return fmt.Errorf("id %q must not contain brackets", s.ID)
	}
	seen := map[string]bool{s.Required(): true}
	for _, f := range s.SubFields {
		if f.Name == "" {
			return fmt.Errorf("%s: sub-field without name", s.ID)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("%s.%s: unknown field type %q", s.ID, f.Name, f.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("%s.%s: duplicate field", s.ID, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Version returns the catalog version, or "" when the snapshot carried none.
func (c *Catalog) Version() string {
	if c == nil || c.version == nil {
		return ""
	}
	return c.version.String()
}

// Supersedes reports whether c may replace prev. A catalog without a version, or
// replacing one without a version, always may; otherwise the version must not go backwards.
func (c *Catalog) Supersedes(prev *Catalog) bool {
	if prev == nil || prev.version == nil || c.version == nil {
		return true
	}
	return !c.version.LessThan(prev.version)
}

// Len returns the number of schemas.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Find returns the schema with the given id.
func (c *Catalog) Find(id string) (Schema, bool) {
	if c == nil {
		return Schema{}, false
	}
	s, ok := c.byID[id]
	if !ok {
		return Schema{}, false
	}
	return cloneSchema(s), true
}

// FindByInstanceKey returns the schema an instance key belongs to.
func (c *Catalog) FindByInstanceKey(key string) (Schema, bool) {
	return c.Find(SchemaID(key))
}

// Schemas returns every schema in catalog order.
func (c *Catalog) Schemas() []Schema {
	if c == nil {
		return nil
	}
	out := make([]Schema, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, cloneSchema(c.byID[id]))
	}
	return out
}

// ByCategory groups schemas by category, keeping catalog order inside each group.
func (c *Catalog) ByCategory() map[string][]Schema {
	out := map[string][]Schema{}
	for _, s := range c.Schemas() {
		out[s.Category] = append(out[s.Category], s)
	}
	return out
}

func cloneSchema(s Schema) Schema {
	out := s
	if s.SubFields != nil {
		out.SubFields = make([]Field, len(s.SubFields))
		for i, f := range s.SubFields {
			out.SubFields[i] = f
			out.SubFields[i].Options = append([]FieldOption(nil), f.Options...)
		}
	}
	if s.DisabledFeatures != nil {
		out.DisabledFeatures = make(map[string]bool, len(s.DisabledFeatures))
		for k, v := range s.DisabledFeatures {
			out.DisabledFeatures[k] = v
		}
	}
	return out
}

// FilterOptions builds the selectable option set of a target field. An option is
// kept when its type and field type both match the target, or when either is unset.
func FilterOptions(options []FieldOption, target Field) []formstate.Option {
	out := make([]formstate.Option, 0, len(options))
	for _, o := range options {
		matches := o.Type == string(target.Type) && o.FieldType == target.FieldType
		if matches || o.Type == "" || o.FieldType == "" {
			out = append(out, formstate.Option{Label: o.Label, Value: o.Value})
		}
	}
	return out
}

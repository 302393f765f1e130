package instance

import (
	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/formstate"
)

// Template is a saved configuration: the active instance keys and the form
// values under them.
type Template struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Keys     []string       `json:"instances"`
	Values   map[string]any `json:"values"`
	Revision int64          `json:"revision,omitempty"`
}

// Capture builds a Template from the active keys of r and their values in store.
// Values outside the active instances are not captured.
func Capture(r *Registry, store *formstate.Store) Template {
	tmp := formstate.NewStore()
	keys := r.ListActive()
	for _, k := range keys {
		if v, ok := store.Get(k); ok {
			_ = tmp.Set(k, v)
		}
	}
	return Template{Keys: keys, Values: tmp.Snapshot()}
}

// Partition splits the template keys into those whose schema is known to
// schemas and the orphans.
func (t Template) Partition(schemas SchemaSource) (known, orphans []string) {
	for _, k := range t.Keys {
		if _, ok := schemas.Find(catalog.SchemaID(k)); ok {
			known = append(known, k)
		} else {
			orphans = append(orphans, k)
		}
	}
	return known, orphans
}

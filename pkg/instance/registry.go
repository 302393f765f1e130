// Package instance tracks which schema instances are active.
package instance

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/standards-console/pkg/catalog"
)

const logPrefix = "instance:registry"

// ErrUnknownSchema is returned by Add for ids absent from the catalog.
var ErrUnknownSchema = errors.New("unknown schema")

// SchemaSource resolves schemas by id.
type SchemaSource interface {
	Find(id string) (catalog.Schema, bool)
}

// Registry holds the active instance keys in insertion order.
type Registry struct {
	schemas SchemaSource
	order   []string
	active  map[string]bool
	// next is the next disambiguator per multiple schema; it never goes back so
	// removed keys are not reused within a session.
	next map[string]int
}

// NewRegistry creates an empty Registry over schemas.
func NewRegistry(schemas SchemaSource) *Registry {
	return &Registry{
		schemas: schemas,
		active:  map[string]bool{},
		next:    map[string]int{},
	}
}

// Key formats the instance key of the n-th instance of a multiple schema.
func Key(schemaID string, n int) string {
	return fmt.Sprintf("%s[%d]", schemaID, n)
}

// Add activates an instance of schemaID. For non-multiple schemas that are already
// active it returns the existing key with added=false and changes nothing.
func (r *Registry) Add(schemaID string) (key string, added bool, err error) {
	schema, ok := r.schemas.Find(schemaID)
	if !ok {
		return "", false, fmt.Errorf("%s - %w: %s", logPrefix, ErrUnknownSchema, schemaID)
	}

	if !schema.Multiple {
		if r.active[schemaID] {
			slog.Debug(fmt.Sprintf("%s - %s already active", logPrefix, schemaID))
			return schemaID, false, nil
		}
		r.insert(schemaID)
		return schemaID, true, nil
	}

	n := r.next[schemaID] + 1
	key = Key(schemaID, n)
	for r.active[key] {
		n++
		key = Key(schemaID, n)
	}
	r.next[schemaID] = n
	r.insert(key)
	return key, true, nil
}

// Restore activates key as-is, used when loading a saved configuration.
// Keys of multiple schemas advance the disambiguator past their index.
func (r *Registry) Restore(key string) bool {
	if r.active[key] {
		return false
	}
	id := catalog.SchemaID(key)
	var n int
	if _, err := fmt.Sscanf(key[len(id):], "[%d]", &n); err == nil && n > r.next[id] {
		r.next[id] = n
	}
	r.insert(key)
	return true
}

func (r *Registry) insert(key string) {
	r.active[key] = true
	r.order = append(r.order, key)
	slog.Debug(fmt.Sprintf("%s - added %s", logPrefix, key))
}

// Remove deactivates key. It reports whether the key was active.
func (r *Registry) Remove(key string) bool {
	if !r.active[key] {
		return false
	}
	delete(r.active, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	slog.Debug(fmt.Sprintf("%s - removed %s", logPrefix, key))
	return true
}

// Has reports whether key is active.
func (r *Registry) Has(key string) bool {
	return r.active[key]
}

// ListActive returns active keys in insertion order.
func (r *Registry) ListActive() []string {
	return append([]string(nil), r.order...)
}

// KeysFor returns the active keys of one schema in insertion order.
func (r *Registry) KeysFor(schemaID string) []string {
	var out []string
	for _, k := range r.order {
		if catalog.SchemaID(k) == schemaID {
			out = append(out, k)
		}
	}
	return out
}

// Clear removes every instance and resets disambiguators.
func (r *Registry) Clear() {
	r.order = nil
	r.active = map[string]bool{}
	r.next = map[string]int{}
}

// Package completeness derives, per active instance, whether it is fully configured.
package completeness

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/formstate"
)

const logPrefix = "completeness:evaluator"

// SchemaSource resolves schemas by id.
type SchemaSource interface {
	Find(id string) (catalog.Schema, bool)
}

// Getter reads a value by dotted path.
type Getter interface {
	Get(path string) (formstate.Value, bool)
}

// Evaluate reports whether the instance at key satisfies schema: the required
// field is filled and, when the schema has sub-fields, every one of them is too.
func Evaluate(schema catalog.Schema, key string, values Getter) bool {
	if !filled(values, key+"."+schema.Required()) {
		return false
	}
	for _, f := range schema.SubFields {
		if !filled(values, key+"."+f.Name) {
			return false
		}
	}
	return true
}

func filled(values Getter, path string) bool {
	v, ok := values.Get(path)
	return ok && formstate.IsNonEmpty(v)
}

// Evaluator keeps completeness results current for tracked instances. Each tracked
// key subscribes to its own subtree of the store, so an edit re-evaluates only the
// instance it touched.
type Evaluator struct {
	mu       sync.Mutex
	schemas  SchemaSource
	store    *formstate.Store
	order    []string
	results  map[string]bool
	unsubs   map[string]func()
	onChange func(key string, complete bool)
}

// New creates an Evaluator over store.
func New(schemas SchemaSource, store *formstate.Store) *Evaluator {
	return &Evaluator{
		schemas: schemas,
		store:   store,
		results: map[string]bool{},
		unsubs:  map[string]func(){},
	}
}

// OnChange registers fn to be called whenever an instance's result flips or is first computed.
func (e *Evaluator) OnChange(fn func(key string, complete bool)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// Track starts evaluating key and computes its current result.
func (e *Evaluator) Track(key string) {
	e.mu.Lock()
	if _, ok := e.unsubs[key]; ok {
		e.mu.Unlock()
		return
	}
	e.order = append(e.order, key)
	e.unsubs[key] = e.store.Subscribe(key, func(formstate.Change) {
		e.refresh(key)
	})
	e.mu.Unlock()

	e.refresh(key)
}

// Untrack stops evaluating key and drops its result.
func (e *Evaluator) Untrack(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	unsub, ok := e.unsubs[key]
	if !ok {
		return
	}
	unsub()
	delete(e.unsubs, key)
	delete(e.results, key)
	for i, k := range e.order {
		if k == key {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Revalidate recomputes every tracked instance.
func (e *Evaluator) Revalidate() {
	e.mu.Lock()
	keys := append([]string(nil), e.order...)
	e.mu.Unlock()

	for _, k := range keys {
		e.refresh(k)
	}
}

func (e *Evaluator) refresh(key string) {
	e.mu.Lock()
	if _, tracked := e.unsubs[key]; !tracked {
		e.mu.Unlock()
		return
	}
	schema, ok := e.schemas.Find(catalog.SchemaID(key))
	if !ok {
		// Orphaned instance: excluded from results, not an error.
		delete(e.results, key)
		e.mu.Unlock()
		slog.Debug(fmt.Sprintf("%s - %s has no schema, excluded", logPrefix, key))
		return
	}
	complete := Evaluate(schema, key, e.store)
	prev, had := e.results[key]
	e.results[key] = complete
	fn := e.onChange
	e.mu.Unlock()

	if fn != nil && (!had || prev != complete) {
		fn(key, complete)
	}
}

// Results returns a copy of the current results keyed by instance key.
func (e *Evaluator) Results() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]bool, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}

// IsComplete returns the result for key; untracked and orphaned keys are incomplete.
func (e *Evaluator) IsComplete(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results[key]
}

// Incomplete lists tracked, non-orphaned keys that are not complete, in tracking order.
func (e *Evaluator) Incomplete() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []string
	for _, k := range e.order {
		if complete, ok := e.results[k]; ok && !complete {
			out = append(out, k)
		}
	}
	return out
}

// Close drops every subscription.
func (e *Evaluator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, unsub := range e.unsubs {
		unsub()
		delete(e.unsubs, k)
	}
	e.order = nil
	e.results = map[string]bool{}
}

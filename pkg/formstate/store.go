// Package formstate holds the form values of every active instance in a single
// tree addressed by dotted paths ("instanceKey.fieldName").
package formstate

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
)

const logPrefix = "formstate:store"

// Value is any value held at a leaf of the store.
type Value = any

// Option is the selected value of an autocomplete field.
type Option struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Change describes a store mutation delivered to subscribers.
type Change struct {
	Path       string
	Generation uint64
	// Reset is set when the whole store was replaced; Path is empty then.
	Reset bool
}

// Listener receives store changes. It runs synchronously before the mutating call returns.
type Listener func(Change)

type subscription struct {
	prefix string
	fn     Listener
}

// Store is the reactive key-value tree of all field values.
type Store struct {
	mu     sync.RWMutex
	root   map[string]any
	gen    uint64
	subs   map[int]subscription
	nextID int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		root: map[string]any{},
		subs: map[int]subscription{},
	}
}

// Set upserts the value at path, creating intermediate nodes as needed.
func (s *Store) Set(path string, value Value) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	node := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = copyValue(value)
	s.gen++
	change := Change{Path: path, Generation: s.gen}
	listeners := s.matching(path)
	s.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - set path=%s gen=%d", logPrefix, path, change.Generation))
	notify(listeners, change)
	return nil
}

// Get returns the value at path. Intermediate nodes are returned as map[string]any copies.
func (s *Store) Get(path string) (Value, bool) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cur any = s.root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return copyValue(cur), true
}

// Delete removes the subtree at path. Deleting a missing path is a no-op and emits nothing.
func (s *Store) Delete(path string) {
	segs, err := splitPath(path)
	if err != nil {
		return
	}

	s.mu.Lock()
	parents := make([]map[string]any, 0, len(segs))
	node := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			s.mu.Unlock()
			return
		}
		parents = append(parents, node)
		node = child
	}
	last := segs[len(segs)-1]
	if _, ok := node[last]; !ok {
		s.mu.Unlock()
		return
	}
	delete(node, last)
	// Prune now-empty intermediate maps.
	for i := len(parents) - 1; i >= 0 && len(node) == 0; i-- {
		delete(parents[i], segs[i])
		node = parents[i]
	}
	s.gen++
	change := Change{Path: path, Generation: s.gen}
	listeners := s.matching(path)
	s.mu.Unlock()

	notify(listeners, change)
}

// Reset atomically replaces the whole tree. Every subscriber is notified once.
func (s *Store) Reset(state map[string]any) {
	s.mu.Lock()
	s.root = copyTree(state)
	s.gen++
	change := Change{Generation: s.gen, Reset: true}
	listeners := make([]Listener, 0, len(s.subs))
	for _, id := range s.subIDs() {
		listeners = append(listeners, s.subs[id].fn)
	}
	s.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - reset gen=%d", logPrefix, change.Generation))
	notify(listeners, change)
}

// Snapshot returns a deep copy of the tree.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTree(s.root)
}

// Generation is incremented on every mutation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Subscribe registers fn for changes at prefix, below it, or above it (a parent
// replacement affects the subtree). An empty prefix receives everything.
func (s *Store) Subscribe(prefix string, fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = subscription{prefix: prefix, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// matching must be called with the lock held.
func (s *Store) matching(path string) []Listener {
	var out []Listener
	for _, id := range s.subIDs() {
		sub := s.subs[id]
		if affects(sub.prefix, path) {
			out = append(out, sub.fn)
		}
	}
	return out
}

// subIDs returns subscription ids in registration order.
func (s *Store) subIDs() []int {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func affects(prefix, path string) bool {
	if prefix == "" || prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+".") || strings.HasPrefix(prefix, path+".")
}

func notify(listeners []Listener, change Change) {
	for _, fn := range listeners {
		fn(change)
	}
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%s - empty path", logPrefix)
	}
	segs := strings.Split(path, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("%s - invalid path %q", logPrefix, path)
		}
	}
	return segs, nil
}

func copyValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		return copyTree(m)
	}
	return v
}

func copyTree(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// IsNonEmpty reports whether v counts as filled: not nil and not an empty string.
// Options, maps and other composite values are filled when present. Typed nil
// pointers, slices and maps count as nil.
func IsNonEmpty(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case *Option:
		return t != nil
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

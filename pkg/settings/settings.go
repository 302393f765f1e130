// Package settings stores per-route console preferences, such as the preferred
// visible columns of a table.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const logPrefix = "settings:settings"

// Columns maps a column id to its visibility.
type Columns map[string]bool

// Store persists column preferences keyed by route.
type Store interface {
	Get(ctx context.Context, route string) (Columns, bool, error)
	Put(ctx context.Context, route string, cols Columns) error
	Delete(ctx context.Context, route string) error
}

// RouteKey derives the preference key of a page from its path: the leading
// slash is dropped, query strings are ignored.
func RouteKey(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.TrimPrefix(path, "/")
}

// MemoryStore keeps preferences for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Columns
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Columns{}}
}

func (m *MemoryStore) Get(_ context.Context, route string) (Columns, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cols, ok := m.items[route]
	if !ok {
		return nil, false, nil
	}
	return copyColumns(cols), true, nil
}

func (m *MemoryStore) Put(_ context.Context, route string, cols Columns) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[route] = copyColumns(cols)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, route string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, route)
	return nil
}

func copyColumns(c Columns) Columns {
	out := make(Columns, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Preferences is the column preference API used by table views.
type Preferences struct {
	store Store
}

// NewPreferences wraps store.
func NewPreferences(store Store) *Preferences {
	return &Preferences{store: store}
}

// Preferred returns the saved columns of the page at path.
func (p *Preferences) Preferred(ctx context.Context, path string) (Columns, bool, error) {
	cols, ok, err := p.store.Get(ctx, RouteKey(path))
	if err != nil {
		return nil, false, fmt.Errorf("%s - get %s: %w", logPrefix, path, err)
	}
	return cols, ok, nil
}

// SavePreferred stores cols as the preferred columns of the page at path.
func (p *Preferences) SavePreferred(ctx context.Context, path string, cols Columns) error {
	if err := p.store.Put(ctx, RouteKey(path), cols); err != nil {
		return fmt.Errorf("%s - put %s: %w", logPrefix, path, err)
	}
	slog.Debug(fmt.Sprintf("%s - saved %d columns for %s", logPrefix, len(cols), RouteKey(path)))
	return nil
}

// DeletePreferred drops the preferred columns of the page at path.
func (p *Preferences) DeletePreferred(ctx context.Context, path string) error {
	if err := p.store.Delete(ctx, RouteKey(path)); err != nil {
		return fmt.Errorf("%s - delete %s: %w", logPrefix, path, err)
	}
	return nil
}

// Apply returns the preferred columns of path when saved, otherwise current.
func (p *Preferences) Apply(ctx context.Context, path string, current Columns) Columns {
	cols, ok, err := p.Preferred(ctx, path)
	if err != nil {
		slog.Warn(err.Error())
		return current
	}
	if !ok {
		return current
	}
	return cols
}

func encodeColumns(c Columns) ([]byte, error) {
	return json.Marshal(c)
}

func decodeColumns(data []byte) (Columns, error) {
	var c Columns
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c == nil {
		c = Columns{}
	}
	return c, nil
}

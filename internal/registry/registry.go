// Package registry provides the process-wide table-name-to-table
// lookup.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tablefabric/vtable/internal/table"
)

// ErrDuplicateName is returned by Add when name already has a table
// registered under it.
var ErrDuplicateName = errors.New("registry: duplicate table name")

const defaultTableName = "__default__"

// Registry is a process-wide mapping from table-name to table, behind
// its own mutex. Tests that exercise multiple tables construct their
// own Registry rather than touching the package-level Default.
type Registry struct {
	mu     sync.Mutex
	tables map[string]*table.Table
}

// New returns an empty, unregistered Registry.
func New() *Registry {
	return &Registry{tables: make(map[string]*table.Table)}
}

// Add registers t under its own name. Fails with ErrDuplicateName if a
// table with that name is already registered.
func (r *Registry) Add(t *table.Table) error {
	if t == nil {
		return fmt.Errorf("registry: nil table")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if name == "" {
		name = defaultTableName
	}
	if _, exists := r.tables[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.tables[name] = t
	return nil
}

// Get looks up name. When name is empty, it returns (or creates) the
// registry's default singleton. When autoCreate is true and no table
// is registered under name, one is created and registered.
func (r *Registry) Get(name string, autoCreate bool) *table.Table {
	key := name
	if key == "" {
		key = defaultTableName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tables[key]; ok {
		return t
	}
	if !autoCreate {
		return nil
	}
	tableName := name
	if tableName == "" {
		tableName = defaultTableName
	}
	t := table.New(tableName)
	r.tables[key] = t
	return t
}

// Remove unregisters name, if present.
func (r *Registry) Remove(name string) {
	key := name
	if key == "" {
		key = defaultTableName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, key)
}

// Names returns a snapshot of all registered table names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tables))
	for n := range r.tables {
		out = append(out, n)
	}
	return out
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, initialized on first use.
// Tests that need isolation should use New() instead.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New()
	})
	return defaultReg
}

// ResetDefaultForTest tears down the process-wide registry singleton.
// Supplemental: exists only so tests that must touch Default() can
// still run in isolation.
func ResetDefaultForTest() {
	defaultOnce = sync.Once{}
	defaultReg = nil
}

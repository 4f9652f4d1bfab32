package symtab

import (
	"sort"
	"sync"
)

// Table is the process-wide set of global symbols. It is safe for
// concurrent use by independent compilations.
type Table struct {
	mu      sync.RWMutex
	symbols map[string]*Symbol
}

// NewTable creates an empty global table.
func NewTable() *Table {
	return &Table{symbols: make(map[string]*Symbol)}
}

// Lookup returns the global named name, or nil.
func (t *Table) Lookup(name string) *Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.symbols[name]
}

// Declare installs a Global symbol for each name that is not yet present.
// Hosts use it to make routine names (including hyphenated action names)
// known before compiling.
func (t *Table) Declare(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range names {
		if _, ok := t.symbols[name]; !ok {
			t.symbols[name] = &Symbol{Name: name, Class: Global}
		}
	}
}

// intern returns the existing global called sym.Name, or adds sym and
// returns it.
func (t *Table) intern(sym *Symbol) *Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.symbols[sym.Name]; ok {
		return existing
	}
	t.symbols[sym.Name] = sym
	return sym
}

// Resolve returns the global called name, creating it if needed.
func (t *Table) Resolve(name string) *Symbol {
	return t.intern(&Symbol{Name: name, Class: Global})
}

// Names returns the sorted names of all globals.
func (t *Table) Names() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.symbols))
	for name := range t.symbols {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of globals.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.symbols)
}

package attribute

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v2"
)

// Table is a concurrency-safe attribute id registry
type Table struct {
	mu    sync.RWMutex
	attrs map[string]Attribute
}

// NewTable builds a table; it panics on an invalid entry because tables
// built in code are static
func NewTable(attrs ...Attribute) *Table {
	t := &Table{attrs: make(map[string]Attribute, len(attrs))}
	for _, a := range attrs {
		if err := t.Register(a); err != nil {
			panic(err)
		}
	}
	return t
}

// Register adds or replaces an attribute
func (t *Table) Register(a Attribute) error {
	if err := a.validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attrs[a.ID] = a
	return nil
}

// Lookup returns the attribute for id
func (t *Table) Lookup(id string) (Attribute, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.attrs[id]
	return a, ok
}

// Len returns the number of attributes
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.attrs)
}

// IDs returns the sorted attribute ids
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.attrs))
	for id := range t.attrs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy
func (t *Table) Clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := &Table{attrs: make(map[string]Attribute, len(t.attrs))}
	for id, a := range t.attrs {
		c.attrs[id] = a
	}
	return c
}

// Merge copies every attribute of other into t, replacing equal ids
func (t *Table) Merge(other *Table) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, a := range other.attrs {
		t.attrs[id] = a
	}
}

type tableFile struct {
	Attributes []Attribute `yaml:"attributes"`
}

// Parse reads a YAML attribute table
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse attribute table: %w", err)
	}

	t := &Table{attrs: make(map[string]Attribute, len(f.Attributes))}
	for _, a := range f.Attributes {
		if err := t.Register(a); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// LoadFile reads a YAML attribute table from disk
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute table: %w", err)
	}
	return Parse(data)
}

// Load returns the built-in catalog merged with the overrides in path.
// An empty path yields the catalog alone.
func Load(path string) (*Table, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	overrides, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	t.Merge(overrides)
	return t, nil
}

// Marshal writes the table as YAML
func (t *Table) Marshal() ([]byte, error) {
	var f tableFile
	for _, id := range t.IDs() {
		a, _ := t.Lookup(id)
		f.Attributes = append(f.Attributes, a)
	}
	return yaml.Marshal(f)
}

package tablemgr

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

type registration struct {
	table    any // Table[T]
	resolved any // *Descriptor[T], set on first successful Resolve
}

var (
	registry   = make(map[reflect.Type]*registration)
	registryMu sync.RWMutex
)

// Register adds the table declaration for T to the registry.
// Panics if T is already registered.
func Register[T any](t Table[T]) {
	registryMu.Lock()
	defer registryMu.Unlock()

	typ := reflect.TypeFor[T]()
	if _, exists := registry[typ]; exists {
		panic(fmt.Sprintf("table already registered for %s", typ))
	}

	// Copy the column slice so later mutation by the caller cannot leak in.
	t.Columns = append([]Column[T](nil), t.Columns...)
	registry[typ] = &registration{table: t}
}

// Resolve returns the descriptor for T. The result is cached, so repeated
// calls return the same descriptor.
func Resolve[T any]() (*Descriptor[T], error) {
	typ := reflect.TypeFor[T]()

	registryMu.RLock()
	reg, ok := registry[typ]
	var cached *Descriptor[T]
	if ok && reg.resolved != nil {
		cached = reg.resolved.(*Descriptor[T])
	}
	registryMu.RUnlock()

	if !ok {
		return nil, &ConfigurationError{Type: typ.String(), Reason: "no table registered", Err: ErrNotRegistered}
	}
	if cached != nil {
		return cached, nil
	}

	d, err := buildDescriptor(typ.String(), reg.table.(Table[T]))
	if err != nil {
		return nil, err
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if reg.resolved != nil {
		return reg.resolved.(*Descriptor[T]), nil
	}
	reg.resolved = d
	return d, nil
}

// buildDescriptor validates a declaration and freezes it.
func buildDescriptor[T any](typ string, t Table[T]) (*Descriptor[T], error) {
	if t.Name == "" {
		return nil, &ConfigurationError{Type: typ, Reason: "table name is empty"}
	}
	if len(t.Columns) == 0 {
		return nil, &ConfigurationError{Type: typ, Reason: "no mapped columns"}
	}

	d := &Descriptor[T]{
		columns: t.Columns,
		newFn:   t.New,
		ref: TableRef{
			Schema:  t.Schema,
			Name:    t.Name,
			Columns: make([]string, 0, len(t.Columns)),
		},
	}
	if d.newFn == nil {
		d.newFn = func() *T { return new(T) }
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		switch {
		case c.Name == "":
			return nil, &ConfigurationError{Type: typ, Reason: "column with empty name"}
		case seen[c.Name]:
			return nil, &ConfigurationError{Type: typ, Reason: fmt.Sprintf("duplicate column %q", c.Name)}
		case c.Value == nil || c.Ptr == nil:
			return nil, &ConfigurationError{Type: typ, Reason: fmt.Sprintf("column %q is missing an accessor", c.Name)}
		}
		seen[c.Name] = true

		d.ref.Columns = append(d.ref.Columns, c.Name)
		if c.PrimaryKey {
			d.keys = append(d.keys, c)
			d.ref.Keys = append(d.ref.Keys, c.Name)
		}
	}

	if len(d.keys) == 0 {
		return nil, &ConfigurationError{Type: typ, Reason: "no primary key column", Err: ErrNoPrimaryKey}
	}

	return d, nil
}

// Registered returns the names of all registered tables, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for typ := range registry {
		names = append(names, typ.String())
	}
	sort.Strings(names)
	return names
}

// Clear removes all registrations.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[reflect.Type]*registration)
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

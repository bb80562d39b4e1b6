package tablemgr

// Column maps one field of T to a table column.
type Column[T any] struct {
	Name       string // Database column name
	PrimaryKey bool   // Part of the key used for joins and existence checks

	// Value reads the field from an entity.
	Value func(*T) any

	// Ptr returns a pointer into the entity suitable as a Scan destination.
	Ptr func(*T) any
}

// Table declares how T maps to a table. Register it at init time.
//
//	tablemgr.Register(tablemgr.Table[Person]{
//	    Name: "people",
//	    Columns: []tablemgr.Column[Person]{
//	        {Name: "id", PrimaryKey: true,
//	            Value: func(p *Person) any { return p.ID },
//	            Ptr:   func(p *Person) any { return &p.ID }},
//	        {Name: "name",
//	            Value: func(p *Person) any { return p.Name },
//	            Ptr:   func(p *Person) any { return &p.Name }},
//	    },
//	})
type Table[T any] struct {
	Schema  string // Empty means the engine's default schema
	Name    string
	Columns []Column[T]

	// New constructs an empty entity for hydration. Defaults to new(T).
	New func() *T
}

// Descriptor is the resolved, validated form of a Table.
// It is immutable once returned by Resolve.
type Descriptor[T any] struct {
	ref     TableRef
	columns []Column[T]
	keys    []Column[T]
	newFn   func() *T
}

// Ref returns the engine-neutral view used by the query builder.
func (d *Descriptor[T]) Ref() TableRef { return d.ref }

// Columns returns the mapped columns in declaration order.
func (d *Descriptor[T]) Columns() []Column[T] { return d.columns }

// Keys returns the primary-key columns in declaration order.
func (d *Descriptor[T]) Keys() []Column[T] { return d.keys }

// KeyValues reads the primary-key values of e in key order.
func (d *Descriptor[T]) KeyValues(e *T) []any {
	vals := make([]any, len(d.keys))
	for i, c := range d.keys {
		vals[i] = c.Value(e)
	}
	return vals
}

// newEntity constructs an entity for hydration.
func (d *Descriptor[T]) newEntity() (*T, error) {
	e := d.newFn()
	if e == nil {
		return nil, &ConstructionError{Type: typeName[T]()}
	}
	return e, nil
}

// scanTargets returns one scan destination per column, in column order.
func (d *Descriptor[T]) scanTargets(e *T) []any {
	dest := make([]any, len(d.columns))
	for i, c := range d.columns {
		dest[i] = c.Ptr(e)
	}
	return dest
}

// TableRef is the structural part of a descriptor: enough to render SQL.
type TableRef struct {
	Schema  string
	Name    string
	Columns []string
	Keys    []string
}

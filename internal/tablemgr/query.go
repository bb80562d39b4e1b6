package tablemgr

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
)

// Filter narrows a SELECT. Where uses '?' markers for Args.
type Filter struct {
	Where   string
	Args    []any
	OrderBy []string
	Limit   int
}

// Builder renders statements for one dialect.
type Builder struct {
	Dialect Dialect
}

// Qualified returns the quoted, schema-qualified destination table name.
func (b Builder) Qualified(t TableRef) string {
	schema := t.Schema
	if schema == "" {
		schema = b.Dialect.DefaultSchema()
	}
	return quoteIdent(schema) + "." + quoteIdent(t.Name)
}

// Select renders a SELECT of every mapped column.
func (b Builder) Select(t TableRef, f Filter) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", quoteIdents(t.Columns), b.Qualified(t))

	if f.Where != "" {
		fmt.Fprintf(&sb, " WHERE (%s)", Rebind(b.Dialect, f.Where, 1))
	}
	if len(f.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteIdents(f.OrderBy))
	}
	if f.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", f.Limit)
	}

	return sb.String(), f.Args
}

// KeyPredicate renders "k1 = $n AND k2 = $n+1 ..." for the given key
// values, which must be in key-column order.
func (b Builder) KeyPredicate(t TableRef, values []any, firstArg int) (string, []any, error) {
	if len(values) != len(t.Keys) {
		return "", nil, fmt.Errorf("key predicate for %s: got %d values for %d key columns", t.Name, len(values), len(t.Keys))
	}

	conds := make([]string, len(t.Keys))
	args := make([]any, len(t.Keys))
	for i, col := range t.Keys {
		if isNull(values[i]) {
			return "", nil, &MissingKeyError{Table: t.Name, Column: col}
		}
		conds[i] = fmt.Sprintf("%s = %s", quoteIdent(col), b.Dialect.Placeholder(firstArg+i))
		args[i] = values[i]
	}
	return strings.Join(conds, " AND "), args, nil
}

// Exists renders a single-row probe for pred.
func (b Builder) Exists(t TableRef, pred string) string {
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", b.Qualified(t), pred)
}

// CreateStaging renders creation of an empty, structurally identical
// temporary table named stage.
func (b Builder) CreateStaging(t TableRef, stage string) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s WHERE 1 = 0",
		quoteIdent(stage), quoteIdents(t.Columns), b.Qualified(t))
}

// DropStaging renders removal of the staging table.
func (b Builder) DropStaging(stage string) string {
	return "DROP TABLE " + quoteIdent(stage)
}

// InsertFromStaging copies every staged row into the destination.
func (b Builder) InsertFromStaging(t TableRef, stage string) string {
	cols := quoteIdents(t.Columns)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		b.Qualified(t), cols, cols, quoteIdent(stage))
}

// InsertMissingFromStaging copies staged rows whose key is not yet present.
func (b Builder) InsertMissingFromStaging(t TableRef, stage string) string {
	cols := quoteIdents(t.Columns)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS d WHERE %s)",
		b.Qualified(t), cols, prefixed("s", t.Columns), quoteIdent(stage), b.Qualified(t), joinOn(t.Keys, "d", "s"))
}

// UpdateViaJoin sets every mapped column, keys included, on destination
// rows matched by key to a staged row.
func (b Builder) UpdateViaJoin(t TableRef, stage string) string {
	sets := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		sets[i] = fmt.Sprintf("%s = s.%s", quoteIdent(c), quoteIdent(c))
	}
	return fmt.Sprintf("UPDATE %s AS d SET %s FROM %s AS s WHERE %s",
		b.Qualified(t), strings.Join(sets, ", "), quoteIdent(stage), joinOn(t.Keys, "d", "s"))
}

// DeleteViaJoin removes destination rows matched by key to a staged row.
func (b Builder) DeleteViaJoin(t TableRef, stage string) string {
	return fmt.Sprintf("DELETE FROM %s AS d WHERE EXISTS (SELECT 1 FROM %s AS s WHERE %s)",
		b.Qualified(t), quoteIdent(stage), joinOn(t.Keys, "d", "s"))
}

// ExistingKeysInStaging selects the key columns of staged rows that
// already exist in the destination.
func (b Builder) ExistingKeysInStaging(t TableRef, stage string) string {
	return fmt.Sprintf("SELECT %s FROM %s AS s WHERE EXISTS (SELECT 1 FROM %s AS d WHERE %s)",
		prefixed("s", t.Keys), quoteIdent(stage), b.Qualified(t), joinOn(t.Keys, "d", "s"))
}

// joinOn renders "l.k1 = r.k1 AND l.k2 = r.k2".
func joinOn(keys []string, left, right string) string {
	conds := make([]string, len(keys))
	for i, k := range keys {
		q := quoteIdent(k)
		conds[i] = fmt.Sprintf("%s.%s = %s.%s", left, q, right, q)
	}
	return strings.Join(conds, " AND ")
}

func prefixed(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + quoteIdent(c)
	}
	return strings.Join(out, ", ")
}

// isNull reports whether v is an absent value: nil, a nil pointer, or a
// driver.Valuer (sql.NullString, pgtype.Text, ...) that is not valid.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return true
		}
	}
	if valuer, ok := v.(driver.Valuer); ok {
		val, err := valuer.Value()
		return err != nil || val == nil
	}
	return false
}

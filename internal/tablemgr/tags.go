package tablemgr

import (
	"reflect"
	"strings"
)

// TagName is the struct tag read by FromTags.
const TagName = "table"

// FromTags builds a Table for T from struct tags of the form
//
//	ID   int64  `table:"id,pk"`
//	Name string `table:"name"`
//
// Untagged fields, fields tagged "-", and unexported fields are not mapped.
// Reflection happens once here; the returned accessors only index into the
// struct. Invalid declarations are reported by Resolve, not here.
func FromTags[T any](schema, name string) Table[T] {
	t := Table[T]{Schema: schema, Name: name}

	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return t
	}

	for _, f := range reflect.VisibleFields(typ) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag, ok := f.Tag.Lookup(TagName)
		if !ok || tag == "-" {
			continue
		}

		col, opts, _ := strings.Cut(tag, ",")
		if col == "" {
			col = toColumnName(f.Name)
		}

		index := f.Index
		t.Columns = append(t.Columns, Column[T]{
			Name:       col,
			PrimaryKey: hasOption(opts, "pk"),
			Value: func(e *T) any {
				return reflect.ValueOf(e).Elem().FieldByIndex(index).Interface()
			},
			Ptr: func(e *T) any {
				return reflect.ValueOf(e).Elem().FieldByIndex(index).Addr().Interface()
			},
		})
	}

	return t
}

func hasOption(opts, want string) bool {
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == want {
			return true
		}
	}
	return false
}

// toColumnName converts a Go field name to snake_case.
// "OwnerID" -> "owner_id", "Name" -> "name"
func toColumnName(field string) string {
	var b strings.Builder
	runes := []rune(field)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

package tablemgr

import (
	"testing"
	"time"
)

type tagged struct {
	OrderID   int64     `table:",pk"`
	LineNo    int       `table:"line_no, pk"`
	SKU       string    `table:"sku"`
	CreatedAt time.Time `table:"created_at"`
	Notes     string    `table:"-"`
	Untagged  string
	internal  string
}

func TestFromTags(t *testing.T) {
	tbl := FromTags[tagged]("", "order_lines")

	want := []struct {
		name string
		pk   bool
	}{
		{"order_id", true},
		{"line_no", true},
		{"sku", false},
		{"created_at", false},
	}
	if len(tbl.Columns) != len(want) {
		t.Fatalf("FromTags() mapped %d columns, want %d", len(tbl.Columns), len(want))
	}
	for i, w := range want {
		c := tbl.Columns[i]
		if c.Name != w.name || c.PrimaryKey != w.pk {
			t.Errorf("column %d = {%s pk=%v}, want {%s pk=%v}", i, c.Name, c.PrimaryKey, w.name, w.pk)
		}
	}

	e := &tagged{OrderID: 9, SKU: "X"}
	if got := tbl.Columns[0].Value(e); got != int64(9) {
		t.Errorf("Value() = %v, want 9", got)
	}

	ptr, ok := tbl.Columns[2].Ptr(e).(*string)
	if !ok {
		t.Fatalf("Ptr() returned %T, want *string", tbl.Columns[2].Ptr(e))
	}
	*ptr = "Y"
	if e.SKU != "Y" {
		t.Errorf("write through Ptr() not visible: SKU = %s", e.SKU)
	}
}

func TestFromTags_NonStruct(t *testing.T) {
	tbl := FromTags[int]("", "ints")
	if len(tbl.Columns) != 0 {
		t.Errorf("FromTags[int]() mapped %d columns, want 0", len(tbl.Columns))
	}
}

func TestToColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Name", "name"},
		{"OwnerID", "owner_id"},
		{"ID", "id"},
		{"CreatedAt", "created_at"},
		{"HTTPStatus", "http_status"},
		{"already_snake", "already_snake"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := toColumnName(tt.in); got != tt.want {
				t.Errorf("toColumnName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

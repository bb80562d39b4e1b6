package people

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/JonMunkholm/tablemgr/internal/engine/sqlite"
	"github.com/JonMunkholm/tablemgr/internal/tablemgr"
)

func newManager(t *testing.T) *tablemgr.Manager {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	if err := conn.Exec(ctx, DDL); err != nil {
		conn.Close(ctx)
		t.Fatalf("DDL: %v", err)
	}

	m := tablemgr.New(conn, tablemgr.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { m.Close(ctx) })
	return m
}

func TestTablesRegistered(t *testing.T) {
	if _, err := tablemgr.Resolve[Person](); err != nil {
		t.Errorf("Resolve[Person]() error = %v", err)
	}
	d, err := tablemgr.Resolve[Pet]()
	if err != nil {
		t.Fatalf("Resolve[Pet]() error = %v", err)
	}
	if got := d.Ref().Columns; len(got) != 3 || got[1] != "owner_id" {
		t.Errorf("Pet columns = %v, want [id owner_id name]", got)
	}
}

func TestPersonCascade(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	alice := &Person{ID: 1, Name: "Alice", Pets: []*Pet{{ID: 10, Name: "Rex"}, {ID: 11, Name: "Tom"}}}
	bob := &Person{ID: 2, Name: "Bob", Pets: []*Pet{{ID: 20, Name: "Kit"}}}
	if _, err := tablemgr.Insert(ctx, m, []*Person{alice, bob}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	loaded, err := tablemgr.Query[Person](ctx, m, tablemgr.Where("id = ?", 1))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(loaded) != 1 || len(loaded[0].Pets) != 2 {
		t.Fatalf("Query() = %+v, want Alice with two pets", loaded)
	}
	if loaded[0].Pets[0].Name != "Rex" || loaded[0].Pets[0].OwnerID != 1 {
		t.Errorf("first pet = %+v", loaded[0].Pets[0])
	}

	// Upsert renames Alice's pet. Bob cannot take Tom while Alice owns him.
	alice.Pets = []*Pet{{ID: 10, Name: "Rex II"}}
	bob.Pets = []*Pet{{ID: 11, Name: "Tom"}}
	res, err := tablemgr.Upsert(ctx, m, []*Person{alice, bob})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if res.Updated != 2 || res.Inserted != 0 {
		t.Errorf("Upsert() = %+v, want {Inserted:0 Updated:2}", res)
	}

	pets, err := tablemgr.Query[Pet](ctx, m, tablemgr.Where("owner_id = ?", 2), tablemgr.OrderBy("id"))
	if err != nil {
		t.Fatalf("Query[Pet]() error = %v", err)
	}
	if len(pets) != 1 || pets[0].ID != 20 {
		t.Errorf("Bob's pets = %+v, want ids [20]", pets)
	}

	pets, err = tablemgr.Query[Pet](ctx, m, tablemgr.Where("owner_id = ?", 1), tablemgr.OrderBy("id"))
	if err != nil {
		t.Fatalf("Query[Pet]() error = %v", err)
	}
	if len(pets) != 2 || pets[0].Name != "Rex II" || pets[1].ID != 11 || pets[1].OwnerID != 1 {
		t.Errorf("Alice's pets = %+v, want Rex II and Tom", pets)
	}

	// Deleting Alice removes her remaining pet even though alice.Pets is stale.
	if _, err := tablemgr.Delete(ctx, m, []*Person{{ID: 1}}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	found, err := tablemgr.Exists(ctx, m, []*Pet{{ID: 10}, {ID: 11}, {ID: 20}})
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if found[0] || found[1] || !found[2] {
		t.Errorf("Exists(10, 11, 20) = %v, want [false false true]", found)
	}
}

func TestPersonSave_SkipsPetsOfOtherOwners(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	alice := &Person{ID: 1, Name: "Alice", Pets: []*Pet{{ID: 10, Name: "Rex"}}}
	if _, err := tablemgr.Insert(ctx, m, []*Person{alice}); err != nil {
		t.Fatalf("Insert(alice) error = %v", err)
	}

	bob := &Person{ID: 2, Name: "Bob", Pets: []*Pet{{ID: 10, Name: "Stolen"}, {ID: 20, Name: "Kit"}}}
	if _, err := tablemgr.Insert(ctx, m, []*Person{bob}); err != nil {
		t.Fatalf("Insert(bob) error = %v", err)
	}

	pets, err := tablemgr.Query[Pet](ctx, m, tablemgr.OrderBy("id"))
	if err != nil {
		t.Fatalf("Query[Pet]() error = %v", err)
	}
	if len(pets) != 2 {
		t.Fatalf("pets = %+v, want 2 rows", pets)
	}
	if pets[0].ID != 10 || pets[0].OwnerID != 1 || pets[0].Name != "Rex" {
		t.Errorf("pet 10 = %+v, want Alice's Rex unchanged", pets[0])
	}
	if pets[1].ID != 20 || pets[1].OwnerID != 2 {
		t.Errorf("pet 20 = %+v, want owned by Bob", pets[1])
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Conn {
	t.Helper()
	ctx := context.Background()
	c, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })

	if err := c.Exec(ctx, `CREATE TABLE "odd ""name""" (id INTEGER PRIMARY KEY, label TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return c
}

func count(t *testing.T, c *Conn) int {
	t.Helper()
	rows, err := c.Query(context.Background(), `SELECT COUNT(*) FROM "odd ""name"""`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer rows.Close()

	var n int
	if !rows.Next() {
		t.Fatal("COUNT returned no row")
	}
	if err := rows.Scan(&n); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return n
}

func TestCopyFrom(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	n, err := tx.CopyFrom(ctx, `odd "name"`, []string{"id", "label"}, [][]any{{1, "a"}, {2, "b"}, {3, nil}})
	if err != nil {
		t.Fatalf("CopyFrom() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CopyFrom() = %d, want 3", n)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if got := count(t, c); got != 3 {
		t.Errorf("row count = %d, want 3", got)
	}
}

func TestCopyFrom_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := tx.CopyFrom(ctx, `odd "name"`, []string{"id", "label"}, [][]any{{1, "a"}, {1, "dup"}}); err == nil {
		t.Error("CopyFrom() with a duplicate key should fail")
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if got := count(t, c); got != 0 {
		t.Errorf("row count after rollback = %d, want 0", got)
	}
}

func TestCopyFrom_Empty(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback(ctx)

	if n, err := tx.CopyFrom(ctx, "missing_table", []string{"id"}, nil); err != nil || n != 0 {
		t.Errorf("CopyFrom(nil) = %d, %v, want 0, nil", n, err)
	}
}

func TestTxExec_RowsAffected(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	if err := c.Exec(ctx, `INSERT INTO "odd ""name""" (id, label) VALUES (1, 'a'), (2, 'b')`); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	n, err := tx.Exec(ctx, `UPDATE "odd ""name""" SET label = ?1`, "z")
	if err != nil {
		t.Fatalf("tx.Exec() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RowsAffected = %d, want 2", n)
	}
	tx.Commit(ctx)
}

func TestClose_Idempotent(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.Dialect().Name() != "sqlite" {
		t.Errorf("Dialect() = %s, want sqlite", c.Dialect().Name())
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

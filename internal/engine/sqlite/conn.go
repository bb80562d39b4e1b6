// Package sqlite connects tablemgr to SQLite through database/sql and
// github.com/mattn/go-sqlite3. Temporary tables are private to a
// connection, so a Conn pins exactly one *sql.Conn.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/JonMunkholm/tablemgr/internal/tablemgr"
	_ "github.com/mattn/go-sqlite3"
)

// Conn is a single SQLite connection satisfying tablemgr.Conn.
type Conn struct {
	db   *sql.DB
	conn *sql.Conn

	once     sync.Once
	closeErr error
}

var _ tablemgr.Conn = (*Conn)(nil)

// Open opens dsn and pins one connection. Use "file::memory:" for an
// in-memory database that lives as long as the Conn.
func Open(ctx context.Context, dsn string) (*Conn, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}
	return &Conn{db: db, conn: conn}, nil
}

// Exec runs a statement outside any tablemgr operation, e.g. fixture DDL.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

// Dialect implements tablemgr.Conn.
func (c *Conn) Dialect() tablemgr.Dialect { return tablemgr.SQLite{} }

// Query implements tablemgr.Conn.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (tablemgr.Rows, error) {
	r, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows{r}, nil
}

// Begin implements tablemgr.Conn.
func (c *Conn) Begin(ctx context.Context) (tablemgr.Tx, error) {
	t, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &tx{tx: t}, nil
}

// Close releases the connection and the database handle exactly once.
func (c *Conn) Close(context.Context) error {
	c.once.Do(func() {
		if err := c.conn.Close(); err != nil {
			c.closeErr = err
		}
		if err := c.db.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

type rows struct {
	*sql.Rows
}

func (r rows) Close() { _ = r.Rows.Close() }

type tx struct {
	tx *sql.Tx
}

func (t *tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *tx) Query(ctx context.Context, query string, args ...any) (tablemgr.Rows, error) {
	r, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows{r}, nil
}

// CopyFrom loads rows with one prepared INSERT executed per row. SQLite
// has no bulk-load protocol; inside a transaction this is its fast path.
func (t *tx) CopyFrom(ctx context.Context, table string, columns []string, data [][]any) (int64, error) {
	if len(data) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quote(col)
		params[i] = "?" + strconv.Itoa(i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoted, ", "), strings.Join(params, ", "))

	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare copy: %w", err)
	}
	defer stmt.Close()

	var n int64
	for _, row := range data {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, fmt.Errorf("copy row %d: %w", n+1, err)
		}
		n++
	}
	return n, nil
}

func (t *tx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *tx) Rollback(context.Context) error { return t.tx.Rollback() }

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Package pgsql connects tablemgr to PostgreSQL through pgx.
//
// Staged batches are loaded with the COPY protocol (pgx CopyFrom).
package pgsql

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/tablemgr/internal/tablemgr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is a single PostgreSQL connection satisfying tablemgr.Conn.
type Conn struct {
	conn    *pgx.Conn
	release func(context.Context) error

	once     sync.Once
	closeErr error
}

var _ tablemgr.Conn = (*Conn)(nil)

// Acquire pins one connection from pool. Close returns it to the pool.
func Acquire(ctx context.Context, pool *pgxpool.Pool) (*Conn, error) {
	pc, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Conn{
		conn: pc.Conn(),
		release: func(context.Context) error {
			pc.Release()
			return nil
		},
	}, nil
}

// Connect opens a dedicated connection. Close closes it.
func Connect(ctx context.Context, connString string) (*Conn, error) {
	c, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return FromConn(c), nil
}

// FromConn wraps an open connection. Close closes it.
func FromConn(c *pgx.Conn) *Conn {
	return &Conn{conn: c, release: c.Close}
}

// Dialect implements tablemgr.Conn.
func (c *Conn) Dialect() tablemgr.Dialect { return tablemgr.Postgres{} }

// Query implements tablemgr.Conn. pgx.Rows already satisfies tablemgr.Rows.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (tablemgr.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

// Begin implements tablemgr.Conn.
func (c *Conn) Begin(ctx context.Context) (tablemgr.Tx, error) {
	t, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &tx{tx: t}, nil
}

// Close releases the connection exactly once.
func (c *Conn) Close(ctx context.Context) error {
	c.once.Do(func() {
		c.closeErr = c.release(ctx)
	})
	return c.closeErr
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *tx) Query(ctx context.Context, sql string, args ...any) (tablemgr.Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

func (t *tx) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return t.tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}

func (t *tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

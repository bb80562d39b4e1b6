package tablemgr

import "context"

// Conn is a single logical connection to the relational engine.
// Implementations live under internal/engine. A Conn is not safe for
// concurrent use; the Manager that owns it serializes all calls.
type Conn interface {
	Dialect() Dialect
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Begin(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// Tx is a unit of work on a Conn. Staging objects created inside a Tx are
// discarded when the Tx rolls back.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// CopyFrom bulk-loads rows into table. Values in each row must follow
	// the order of columns.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is a forward-only result cursor.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

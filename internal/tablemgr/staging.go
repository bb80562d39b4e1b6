package tablemgr

// staging.go moves a batch of entities to the server for set-based statements.
//
// The flow for every batch operation is:
//
//  1. Materialize reads each entity through the column accessors into a
//     columnar StagingTable (column order = descriptor order).
//  2. stage opens a transaction, creates a temporary table shaped like the
//     destination and bulk-loads the rows through Tx.CopyFrom.
//  3. The caller runs its join statement against the staging table.
//  4. release drops the staging table and commits, or rolls back on any
//     failure. Rolling back also discards the temporary table, so a failed
//     load never leaves a staging object behind.

import (
	"context"
	"log/slog"
	"strings"
)

// StagingTable is a transient, columnar copy of a batch.
type StagingTable struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of staged rows.
func (s *StagingTable) Len() int { return len(s.Rows) }

// Materialize reads every mapped column of each entity into a StagingTable.
func Materialize[T any](d *Descriptor[T], entities []*T) *StagingTable {
	st := &StagingTable{
		Columns: d.ref.Columns,
		Rows:    make([][]any, 0, len(entities)),
	}
	for _, e := range entities {
		row := make([]any, len(d.columns))
		for i, c := range d.columns {
			row[i] = c.Value(e)
		}
		st.Rows = append(st.Rows, row)
	}
	return st
}

// StageName derives the staging table name for t. Temporary tables are
// scoped to the connection, so the name only has to be unique per table.
func StageName(t TableRef) string {
	var b strings.Builder
	b.WriteString("stage_")
	if t.Schema != "" {
		b.WriteString(t.Schema)
		b.WriteByte('_')
	}
	b.WriteString(t.Name)
	return b.String()
}

// stagedBatch is a staging table inside an open transaction.
type stagedBatch struct {
	tx     Tx
	name   string
	rows   int64
	b      Builder
	logger *slog.Logger
}

// stage creates the staging table for t inside a new transaction and
// bulk-loads st into it. On failure nothing is left open.
func (m *Manager) stage(ctx context.Context, t TableRef, st *StagingTable, logger *slog.Logger) (*stagedBatch, error) {
	tx, err := m.conn.Begin(ctx)
	if err != nil {
		return nil, engineErr("begin transaction", "", err)
	}

	sb := &stagedBatch{
		tx:     tx,
		name:   StageName(t),
		b:      m.builder,
		logger: logger,
	}

	if err := sb.transfer(ctx, t, st); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Warn("rollback after failed staging", "stage", sb.name, "error", rbErr)
		}
		return nil, err
	}

	return sb, nil
}

// transfer creates the staging table and bulk-loads all rows.
func (sb *stagedBatch) transfer(ctx context.Context, t TableRef, st *StagingTable) error {
	create := sb.b.CreateStaging(t, sb.name)
	sb.logger.Debug("create staging table", "sql", create)
	if _, err := sb.tx.Exec(ctx, create); err != nil {
		return engineErr("create staging table", create, err)
	}

	n, err := sb.tx.CopyFrom(ctx, sb.name, st.Columns, st.Rows)
	if err != nil {
		return engineErr("bulk transfer", "", err)
	}
	sb.rows = n
	sb.logger.Debug("staged rows", "stage", sb.name, "rows", n)
	return nil
}

// exec runs stmt in the staging transaction and returns rows affected.
func (sb *stagedBatch) exec(ctx context.Context, op, stmt string) (int64, error) {
	sb.logger.Debug(op, "sql", stmt)
	n, err := sb.tx.Exec(ctx, stmt)
	if err != nil {
		return 0, engineErr(op, stmt, err)
	}
	return n, nil
}

// release ends the staging transaction. When *errp is nil the staging
// table is dropped and the transaction committed; otherwise, or if the
// drop or commit fails, the transaction is rolled back and *errp set.
// Always call it deferred right after a successful stage.
func (sb *stagedBatch) release(ctx context.Context, errp *error) {
	if *errp == nil {
		drop := sb.b.DropStaging(sb.name)
		if _, err := sb.tx.Exec(ctx, drop); err != nil {
			*errp = engineErr("drop staging table", drop, err)
		} else if err := sb.tx.Commit(ctx); err != nil {
			*errp = engineErr("commit", "", err)
			return
		} else {
			return
		}
	}

	if err := sb.tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		sb.logger.Warn("rollback staging transaction", "stage", sb.name, "error", err)
	}
}

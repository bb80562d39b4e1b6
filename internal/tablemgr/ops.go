package tablemgr

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// CallOption tunes a single operation.
type CallOption func(*callOptions)

type callOptions struct {
	filter      Filter
	skipCascade bool
}

// Where filters Query results. pred uses '?' markers bound to args; values
// are never interpolated into the statement text.
//
// Every '?' outside a quoted literal or identifier is a marker, including
// one inside a -- or /* */ comment. PostgreSQL jsonb operators such as ?
// and ?| cannot appear in pred; use jsonb_exists or jsonb_exists_any.
func Where(pred string, args ...any) CallOption {
	return func(o *callOptions) {
		o.filter.Where = pred
		o.filter.Args = args
	}
}

// OrderBy sorts Query results by the given columns, ascending.
func OrderBy(columns ...string) CallOption {
	return func(o *callOptions) { o.filter.OrderBy = columns }
}

// Limit caps the number of rows Query returns.
func Limit(n int) CallOption {
	return func(o *callOptions) { o.filter.Limit = n }
}

// SkipCascade disables Load/Save/Delete hooks for this call.
func SkipCascade() CallOption {
	return func(o *callOptions) { o.skipCascade = true }
}

func applyOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Query returns every T matching the options. Unless SkipCascade is given,
// each result's Load hook runs after all rows have been read.
func Query[T any](ctx context.Context, m *Manager, opts ...CallOption) (out []*T, err error) {
	d, err := Resolve[T]()
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	c, err := m.begin(ctx, "query", d.ref.Name)
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err, "rows", len(out)) }()

	stmt, args := m.builder.Select(d.ref, o.filter)
	c.logger.Debug("select", "sql", stmt)

	rows, err := m.conn.Query(c.ctx, stmt, args...)
	if err != nil {
		return nil, engineErr("query", stmt, err)
	}
	out, err = hydrate(d, rows)
	if err != nil {
		return nil, err
	}

	if !o.skipCascade {
		if err = cascade(c.ctx, m, out, hookLoad); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// hydrate builds one entity per row and closes rows.
func hydrate[T any](d *Descriptor[T], rows Rows) ([]*T, error) {
	defer rows.Close()

	var out []*T
	for rows.Next() {
		e, err := d.newEntity()
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(d.scanTargets(e)...); err != nil {
			return nil, engineErr("scan row", "", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, engineErr("read rows", "", err)
	}
	return out, nil
}

// EntityExists reports whether a row with e's primary key exists.
func EntityExists[T any](ctx context.Context, m *Manager, e *T) (found bool, err error) {
	d, err := Resolve[T]()
	if err != nil {
		return false, err
	}
	pred, args, err := m.builder.KeyPredicate(d.ref, d.KeyValues(e), 1)
	if err != nil {
		return false, err
	}

	c, err := m.begin(ctx, "exists", d.ref.Name)
	if err != nil {
		return false, err
	}
	defer func() { c.end(err, "found", found) }()

	stmt := m.builder.Exists(d.ref, pred)
	c.logger.Debug("exists", "sql", stmt)

	rows, err := m.conn.Query(c.ctx, stmt, args...)
	if err != nil {
		return false, engineErr("exists", stmt, err)
	}
	defer rows.Close()

	found = rows.Next()
	if err = rows.Err(); err != nil {
		return false, engineErr("exists", stmt, err)
	}
	return found, nil
}

// Exists classifies a whole batch in one round trip: result[i] reports
// whether entities[i] already has a row. Every key value must be present.
func Exists[T any](ctx context.Context, m *Manager, entities []*T) (result []bool, err error) {
	d, err := Resolve[T]()
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return []bool{}, nil
	}
	keys, err := batchKeys(d, entities)
	if err != nil {
		return nil, err
	}

	c, err := m.begin(ctx, "exists_batch", d.ref.Name)
	if err != nil {
		return nil, err
	}
	defer func() { c.end(err, "entities", len(entities)) }()

	existing := make(map[string]bool, len(entities))
	_, err = m.withStaging(c, d.ref, Materialize(d, entities), func(sb *stagedBatch) (int64, error) {
		stmt := m.builder.ExistingKeysInStaging(d.ref, sb.name)
		c.logger.Debug("classify", "sql", stmt)

		rows, err := sb.tx.Query(c.ctx, stmt)
		if err != nil {
			return 0, engineErr("classify", stmt, err)
		}
		defer rows.Close()

		probe, err := d.newEntity()
		if err != nil {
			return 0, err
		}
		dest := make([]any, len(d.keys))
		for i, k := range d.keys {
			dest[i] = k.Ptr(probe)
		}
		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				return 0, engineErr("scan key", stmt, err)
			}
			existing[keyString(d.KeyValues(probe))] = true
		}
		if err := rows.Err(); err != nil {
			return 0, engineErr("classify", stmt, err)
		}
		return int64(len(existing)), nil
	})
	if err != nil {
		return nil, err
	}

	result = make([]bool, len(entities))
	for i, k := range keys {
		result[i] = existing[k]
	}
	return result, nil
}

// Insert bulk-inserts entities, then runs their Save hooks.
// An empty batch is a no-op.
func Insert[T any](ctx context.Context, m *Manager, entities []*T, opts ...CallOption) (int64, error) {
	return runBatch(ctx, m, "insert", entities, opts, hookSave,
		func(ctx context.Context, t TableRef, sb *stagedBatch) (int64, error) {
			return sb.exec(ctx, "insert from staging", m.builder.InsertFromStaging(t, sb.name))
		})
}

// Update overwrites every mapped column of rows matching the entities'
// keys, then runs their Save hooks. Returns the number of rows matched.
func Update[T any](ctx context.Context, m *Manager, entities []*T, opts ...CallOption) (int64, error) {
	return runBatch(ctx, m, "update", entities, opts, hookSave,
		func(ctx context.Context, t TableRef, sb *stagedBatch) (int64, error) {
			return sb.exec(ctx, "update via join", m.builder.UpdateViaJoin(t, sb.name))
		})
}

// Delete removes rows matching the entities' keys, then runs their Delete hooks.
func Delete[T any](ctx context.Context, m *Manager, entities []*T, opts ...CallOption) (int64, error) {
	return runBatch(ctx, m, "delete", entities, opts, hookDelete,
		func(ctx context.Context, t TableRef, sb *stagedBatch) (int64, error) {
			return sb.exec(ctx, "delete via join", m.builder.DeleteViaJoin(t, sb.name))
		})
}

// UpsertResult counts how an Upsert batch was routed.
type UpsertResult struct {
	Inserted int64
	Updated  int64
}

// Upsert updates entities whose key already exists and inserts the rest,
// staging the batch once. When the batch repeats a key, the last entity
// with that key wins. Save hooks run for every persisted entity.
func Upsert[T any](ctx context.Context, m *Manager, entities []*T, opts ...CallOption) (res UpsertResult, err error) {
	d, err := Resolve[T]()
	if err != nil {
		return res, err
	}
	if len(entities) == 0 {
		return res, nil
	}
	batch, err := dedupe(d, entities)
	if err != nil {
		return res, err
	}

	_, err = runBatch(ctx, m, "upsert", batch, opts, hookSave,
		func(ctx context.Context, t TableRef, sb *stagedBatch) (int64, error) {
			// Update first: rows inserted next must not count as updated.
			updated, err := sb.exec(ctx, "update via join", m.builder.UpdateViaJoin(t, sb.name))
			if err != nil {
				return 0, err
			}
			inserted, err := sb.exec(ctx, "insert missing from staging", m.builder.InsertMissingFromStaging(t, sb.name))
			if err != nil {
				return 0, err
			}
			res = UpsertResult{Inserted: inserted, Updated: updated}
			return inserted + updated, nil
		})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

// runBatch drives the shared batch state machine:
// resolve, stage+transfer, run, drop, cascade.
func runBatch[T any](ctx context.Context, m *Manager, op string, entities []*T, opts []CallOption, h hook,
	run func(ctx context.Context, t TableRef, sb *stagedBatch) (int64, error)) (n int64, err error) {
	d, err := Resolve[T]()
	if err != nil {
		return 0, err
	}
	if len(entities) == 0 {
		return 0, nil
	}
	for i, e := range entities {
		if e == nil {
			return 0, fmt.Errorf("%s %s: entity at index %d is nil", op, d.ref.Name, i)
		}
	}
	o := applyOptions(opts)

	c, err := m.begin(ctx, op, d.ref.Name)
	if err != nil {
		return 0, err
	}
	defer func() { c.end(err, "entities", len(entities), "affected", n) }()

	n, err = m.withStaging(c, d.ref, Materialize(d, entities), func(sb *stagedBatch) (int64, error) {
		return run(c.ctx, d.ref, sb)
	})
	if err != nil {
		return 0, err
	}

	if !o.skipCascade {
		if err = cascade(c.ctx, m, entities, h); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// withStaging stages st, runs fn against it and releases the staging
// table on every path.
func (m *Manager) withStaging(c *call, t TableRef, st *StagingTable, fn func(*stagedBatch) (int64, error)) (n int64, err error) {
	sb, err := m.stage(c.ctx, t, st, c.logger)
	if err != nil {
		return 0, err
	}
	defer sb.release(c.ctx, &err)

	return fn(sb)
}

// batchKeys returns the key string of every entity, failing on absent keys.
func batchKeys[T any](d *Descriptor[T], entities []*T) ([]string, error) {
	keys := make([]string, len(entities))
	for i, e := range entities {
		if e == nil {
			return nil, fmt.Errorf("%s: entity at index %d is nil", d.ref.Name, i)
		}
		vals := d.KeyValues(e)
		for j, v := range vals {
			if isNull(v) {
				return nil, &MissingKeyError{Table: d.ref.Name, Column: d.keys[j].Name}
			}
		}
		keys[i] = keyString(vals)
	}
	return keys, nil
}

// dedupe keeps the last entity for each key, in first-seen key order.
func dedupe[T any](d *Descriptor[T], entities []*T) ([]*T, error) {
	keys, err := batchKeys(d, entities)
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(entities))
	out := make([]*T, 0, len(entities))
	for i, k := range keys {
		if p, ok := pos[k]; ok {
			out[p] = entities[i]
			continue
		}
		pos[k] = len(out)
		out = append(out, entities[i])
	}
	return out, nil
}

// keyString renders key values as a map key. Pointers are followed so a
// key read from an entity and one scanned back from the engine compare equal.
func keyString(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && !rv.IsNil() {
			v = rv.Elem().Interface()
		}
		if t, ok := v.(time.Time); ok {
			parts[i] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "\x1f")
}

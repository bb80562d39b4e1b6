// Package tablemgr maps Go entity types onto relational tables and runs
// set-based CRUD for them.
//
// Instead of issuing one statement per row, every batch operation stages
// the whole batch in a temporary table and applies a single join-based
// statement against the destination. The package is independent of any
// transport; the engine it talks to is supplied as a [Conn].
//
// # Architecture
//
// The package is organized around four pieces:
//
//   - Registry: [Table] declarations registered at init time and resolved
//     into immutable [Descriptor] values.
//   - Query Builder: [Builder] renders parameterized SQL per [Dialect].
//   - Staging Loader: [Materialize] and the staged batch flow move entities
//     to the server with the engine's bulk path.
//   - Orchestrator: [Manager] plus the generic operations [Query],
//     [EntityExists], [Exists], [Insert], [Update], [Upsert] and [Delete].
//
// # Table Registry
//
// Tables are registered at init time using [Register], either by hand
// or from struct tags with [FromTags]:
//
//	type Pet struct {
//	    ID      int64  `table:"id,pk"`
//	    OwnerID int64  `table:"owner_id"`
//	    Name    string `table:"name"`
//	}
//
//	func init() {
//	    tablemgr.Register(tablemgr.FromTags[Pet]("", "pets"))
//	}
//
// # Batch Operations
//
// A batch call resolves the descriptor, opens a transaction, creates the
// staging table, bulk-loads the rows, runs one join statement, drops the
// staging table and commits. Any failure rolls the transaction back,
// which also discards the staging table. An empty batch is a no-op.
//
// # Cascading
//
// Entities that implement [Cascader] get their Load, Save or Delete hook
// called after their own rows were read, written or removed. Hooks receive
// the Manager and may issue further calls. Nesting is bounded by
// [WithMaxCascadeDepth]; exceeding it returns [*CascadeDepthError].
//
// # Error Handling
//
// Failures are typed: [*ConfigurationError], [*MissingKeyError],
// [*ConstructionError], [*EngineError] and [*CascadeDepthError].
// [MapError] turns any of them into a user-facing message with a code:
//
//   - CFG001-CFG002: Registration errors
//   - KEY001, ENT001, CAS001: Entity errors
//   - DB001-DB008: Database errors (duplicates, constraints, connections)
//
// # Concurrency
//
// A Manager owns one connection and is not safe for concurrent use.
// Give each goroutine or request its own Manager.
package tablemgr

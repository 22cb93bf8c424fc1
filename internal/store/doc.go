// Package store provides SQLite-backed durable storage for operation journals.
//
// The store is an append-only log with:
//   - Invocations: a call entering an operation's middleware chain
//   - Completions: how that call finished (ok or error)
//   - History steps: push, undo and redo on a document's history
//
// # Ordering
//
// All ordering uses seq INTEGER (logical clock), never timestamps. Every
// list query orders by seq ASC, id ASC COLLATE BINARY so results are
// identical across runs.
//
// # Idempotency
//
// Invocation and completion IDs are content-addressed (see internal/ir
// hash.go); writing the same record twice is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

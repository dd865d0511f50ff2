// Package store provides SQLite-backed durable storage for statehub.
//
// Three tables make up the persisted layout:
//   - log_records: the append log, keyed by (partition, seq)
//   - tenants: partition keys, the newest active one is the live tenant
//   - checkpoints: serialized Store snapshots named tenant-timestamp-seq
//
// # Ordering
//
// Every read orders by seq ascending. Timestamps are informational and never
// used for ordering, so replay is deterministic regardless of wall time.
//
// # Single writer
//
// Append inserts at an explicit sequence. A second process writing the same
// partition collides on the primary key and gets ErrSequenceConflict instead
// of silently forking the log.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Record batches are stored as RFC 8785 canonical JSON (see internal/ir).
package store

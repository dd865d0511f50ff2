// Package state implements the in-memory projection that every statehub
// service reads from: a Store made of named slices plus the typed update
// algebra that folds log batches into it.
//
// # Slices
//
//   - LIST: ordered, identity-bearing items. Each item carries an "_id"
//     assigned by the Store from a per-slice counter that lives inside the
//     slice, so ids survive checkpoint/restore and are never reused.
//   - HASH: a single mergeable object.
//   - COUNTER: a monotonic integer.
//
// # Apply
//
// Batches must arrive in strictly increasing head-sequence order. A batch
// whose control head does not match the Store is an invariant violation:
// dispatch serialization makes this impossible unless there is a bug, so
// it is never retried.
//
// Apply never mutates the current snapshot. Each touched slice is folded
// into a new value and the whole snapshot is swapped atomically, so a
// reader holding the previous snapshot keeps a consistent view.
package state

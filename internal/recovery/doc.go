// Package recovery rebuilds Stores from checkpoints and the append log.
//
// A checkpoint is an advisory artifact: every registered Store serialized
// under the connection gate, tagged with the live sequence. Restore loads the
// newest one (highest sequence, ties broken by name) and rolls forward over
// the records after it. A missing or corrupt checkpoint is never fatal; the
// Stores are rebuilt from sequence 0 instead.
package recovery

// Package logconn wraps the durable append log for one tenant partition.
//
// A Conn owns three things every writer shares:
//   - the partition key, resolved at startup (polling until a tenant exists)
//   - the live sequence, advanced only after a durable append
//   - a FIFO write gate, held across append and in-memory apply
//
// Reads go through Range (finite, ascending) and Tail (infinite, restartable
// from any sequence). Both are iter.Seq2 values.
package logconn

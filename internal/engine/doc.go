// Package engine composes reducers into a State Manager.
//
// ARCHITECTURE:
//
// A Manager owns one state.Store and shares a logconn.Conn with any other
// Managers on the same tenant. Every dispatch runs the same cycle:
//
//  1. Acquire the connection gate (FIFO)
//  2. ProcessAction: run reducers in registration order, collect one batch
//  3. Prepare the batch against the Store (invariant check, no publish)
//  4. Append one LogRecord {store name: batch} at the next sequence
//  5. Commit the prepared snapshot, publish a ChangeEvent
//  6. Release the gate
//
// Append-then-apply never interleaves with another dispatch on the same
// connection: this is the system's only atomicity boundary.
//
// Pass-in:
// A reducer may declare one other slice as its pass-in. The dependency runs
// first, inside the same dispatch, and its ops and info are handed to the
// dependent. One action can so update two slices atomically, e.g. an order
// reserving a number from a counter slice.
//
// Failure policy:
// Info.Failed is advisory. It never rolls back ops other reducers already
// returned for the same batch.
package engine

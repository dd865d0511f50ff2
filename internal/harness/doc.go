// Package harness runs YAML scenarios against the demo stores.
//
// A scenario drives the inventory, orders and factory stores and the
// factory workflow on a fresh log, then asserts on what is left behind.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	tenant: acme                   # optional
//	factory:                       # optional workflow timings
//	  build_time: 1m
//	  inspections: 2
//	  inspect_interval: 10s
//	setup:
//	  - store: inventory
//	    dispatch: inventory/add
//	    payload: { name: bolt, qty: 10, price: 25 }
//	flow:
//	  - store: orders
//	    dispatch: order/place
//	    payload: { item: 1, qty: 3, amount: 75 }
//	    expect:
//	      failed: false
//	      result: { orders: { data: { _id: 1, seq: 1 } } }
//	  - start: { order: 1, item: 1, qty: 3 }
//	    expect: { id: 0 }
//	  - advance: 1m
//	  - scan: true
//	    expect: { resumed: 1 }
//	assertions:
//	  - type: state
//	    store: inventory
//	    slice: items
//	    id: 1
//	    expect: { qty: 10, sku: SKU-0001 }
//	  - type: replay
//
// # Step Kinds
//
//   - dispatch: send an action to a store (store, dispatch, payload)
//   - start: begin a workflow process with a context object (start, trigger)
//   - advance: move the fake clock
//   - scan: run one workflow restart scan
//   - cleanup: remove completed processes
//   - checkpoint: write a checkpoint of every store
//
// # Assertion Types
//
//   - state: a store value subset-matches expect
//   - log_count: the log holds exactly count records
//   - process: a workflow record subset-matches expect
//   - replay: stores rebuilt from the log (optionally from the latest
//     checkpoint) equal the live stores
//
// # Deterministic Testing
//
// Every run uses a fresh SQLite log, a fake clock starting at
// testutil.Epoch, sequential request ids ("req-0001", ...) and a scan
// concurrency of one, so the same scenario yields the same trace. Traces
// are compared against golden files with RunWithGolden.
package harness

// Package demo is the commerce demo built on the engine: an inventory, an
// order book whose numbers come from a counter slice via pass-in, and a
// factory whose jobs are driven by a workflow.
package demo

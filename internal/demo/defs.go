package demo

import (
	_ "embed"

	"github.com/roach88/statehub/internal/compiler"
	"github.com/roach88/statehub/internal/state"
)

// Store names.
const (
	StoreInventory = "inventory"
	StoreOrders    = "orders"
	StoreFactory   = "factory"
	StoreWorkflow  = "workflow"
)

//go:embed defs.cue
var defsCUE []byte

// DefsSource returns the embedded CUE source.
func DefsSource() []byte { return defsCUE }

// Definitions compiles the embedded store definitions.
func Definitions() ([]state.Definition, error) {
	return compiler.CompileSource("defs.cue", defsCUE)
}

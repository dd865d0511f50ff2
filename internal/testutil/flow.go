package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates request ids "<prefix>-0001", "<prefix>-0002", ...
//
// This enables deterministic test execution and golden trace comparison:
// the same scenario produces byte-identical log records.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "req".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements workflow.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

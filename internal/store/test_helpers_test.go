package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/statehub/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with one INC on orders/order_seq.
func createTestRecord(partition string, seq int64) ir.LogRecord {
	return ir.LogRecord{
		Seq:       seq,
		Partition: partition,
		Timestamp: 1_700_000_000_000 + seq,
		Batches: map[string]ir.UpdateBatch{
			"orders": {
				Control: ir.Control{HeadSequence: seq - 1, LastUpdated: 1_700_000_000_000 + seq},
				Updates: map[string][]ir.WireOp{
					"order_seq": {{Method: ir.MethodInc}},
				},
			},
		},
	}
}

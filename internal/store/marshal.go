package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/statehub/internal/ir"
)

// marshalBatches converts a record's batches to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so the same record always stores the same bytes.
func marshalBatches(batches map[string]ir.UpdateBatch) (string, error) {
	data, err := ir.MarshalCanonical(ir.BatchesValue(batches))
	if err != nil {
		return "", fmt.Errorf("marshal batches: %w", err)
	}
	return string(data), nil
}

// unmarshalBatches parses stored batches. Docs go through ir.Object's
// UnmarshalJSON, which keeps large integers exact.
func unmarshalBatches(data string) (map[string]ir.UpdateBatch, error) {
	var out map[string]ir.UpdateBatch
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal batches: %w", err)
	}
	if out == nil {
		out = map[string]ir.UpdateBatch{}
	}
	return out, nil
}

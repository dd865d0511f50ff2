package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/ir"
)

func TestMatchSubset(t *testing.T) {
	got := ir.Object{
		"name": ir.String("bolt"),
		"qty":  ir.Int(7),
		"tags": ir.Array{ir.String("a"), ir.Object{"k": ir.Int(1), "extra": ir.Bool(true)}},
		"meta": ir.Object{"owner": ir.String("ops")},
	}

	tests := []struct {
		name     string
		want     ir.Value
		wantPath string
		wantOK   bool
	}{
		{"empty object", ir.Object{}, "", true},
		{"scalar field", ir.Object{"qty": ir.Int(7)}, "", true},
		{"nested subset", ir.Object{"meta": ir.Object{}}, "", true},
		{"array elements as subsets", ir.Object{"tags": ir.Array{ir.String("a"), ir.Object{"k": ir.Int(1)}}}, "", true},
		{"wrong scalar", ir.Object{"qty": ir.Int(8)}, "$.qty", false},
		{"missing key", ir.Object{"price": ir.Int(1)}, "$.price", false},
		{"nested mismatch", ir.Object{"meta": ir.Object{"owner": ir.String("dev")}}, "$.meta.owner", false},
		{"array length", ir.Object{"tags": ir.Array{ir.String("a")}}, "$.tags", false},
		{"array element", ir.Object{"tags": ir.Array{ir.String("a"), ir.Object{"k": ir.Int(2)}}}, "$.tags[1].k", false},
		{"type mismatch", ir.Object{"name": ir.Object{}}, "$.name", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := matchSubset(tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestMatchSubset_NullMatchesMissingValue(t *testing.T) {
	_, ok := matchSubset(ir.Null{}, nil)
	assert.True(t, ok)
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Type: AssertLogCount, Expected: "2 records", Actual: "3 records"}
	assert.Equal(t, "log_count assertion failed: expected 2 records, got 3 records", err.Error())
}

func TestEvaluateAssertions(t *testing.T) {
	s := loadTestScenario(t, "inventory_reserve")
	ctx := context.Background()

	h, err := New(ctx, s)
	require.NoError(t, err)
	defer h.Close()
	_, err = h.Execute(ctx, s)
	require.NoError(t, err)

	id := func(n int64) *int64 { return &n }

	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "state holds",
			assertion: Assertion{Type: AssertState, Store: "inventory", Slice: "items", ID: id(1), Path: "qty", Expect: 7},
		},
		{
			name:      "state differs",
			assertion: Assertion{Type: AssertState, Store: "inventory", Slice: "items", ID: id(1), Path: "qty", Expect: 8},
			want:      "state assertion failed: expected inventory/items/1:qty to match 8 (at $), got 7",
		},
		{
			name:      "state missing item",
			assertion: Assertion{Type: AssertState, Store: "inventory", Slice: "items", ID: id(5), Expect: map[string]any{}},
			want:      "got <missing>",
		},
		{
			name:      "state unknown store",
			assertion: Assertion{Type: AssertState, Store: "warehouse", Slice: "items", Expect: 1},
			want:      `unknown store "warehouse"`,
		},
		{
			name:      "process missing",
			assertion: Assertion{Type: AssertProcess, ID: id(0), Expect: map[string]any{}},
			want:      "expected process 0, got no such process",
		},
		{
			name:      "replay from missing checkpoint",
			assertion: Assertion{Type: AssertReplay, FromCheckpoint: true},
			want:      "expected a checkpoint to restore from, got none",
		},
		{
			name:      "replay from log",
			assertion: Assertion{Type: AssertReplay},
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "trace_count"},
			want:      `unknown assertion type "trace_count"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(ctx, h, []Assertion{tt.assertion})
			if tt.want == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

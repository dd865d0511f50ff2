package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/state"
)

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateValidStores(t *testing.T) {
	defs := []state.Definition{
		{Name: "shop", Slices: []state.SliceDef{
			{Name: "orders", Kind: state.KindList, IDStart: 1, DisplayFormat: "ORD-%05d"},
			{Name: "settings", Kind: state.KindHash, Init: ir.Object{"open": ir.Bool(true)}},
			{Name: "order_seq", Kind: state.KindCounter},
		}},
		{Name: "inventory", Slices: []state.SliceDef{{Name: "items", Kind: state.KindList}}},
	}
	assert.Empty(t, Validate(defs, "workflow"))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	defs := []state.Definition{
		{Name: "", Slices: nil},
		{Name: "Shop", Slices: []state.SliceDef{
			{Name: "a", Kind: "TREE"},
			{Name: "a", Kind: state.KindCounter, DisplayFormat: "X", IDStart: -1},
			{Name: "h", Kind: state.KindList, Init: ir.Object{}},
		}},
		{Name: "workflow", Slices: []state.SliceDef{{Name: "x", Kind: state.KindHash, IDStart: 3}}},
		{Name: "inv", Slices: []state.SliceDef{{Name: "x", Kind: state.KindCounter}}},
		{Name: "inv", Slices: []state.SliceDef{{Name: "x", Kind: state.KindCounter}}},
	}
	got := codes(Validate(defs, "workflow"))

	assert.ElementsMatch(t, []string{
		ErrStoreNameEmpty, ErrStoreNoSlices,
		ErrInvalidName, ErrUnknownKind,
		ErrDuplicateName, ErrDisplayNotList, ErrIDStartNotList, ErrBadDisplayFormat, ErrNegativeIDStart,
		ErrInitNotHash,
		ErrReservedStoreName, ErrIDStartNotList,
		ErrDuplicateStore,
	}, got)
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "store.shop", Message: "bad", Code: ErrInvalidName}
	assert.Equal(t, "[E104] store.shop: bad", e.Error())
}

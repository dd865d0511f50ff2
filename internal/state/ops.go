package state

import (
	"github.com/roach88/statehub/internal/ir"
)

// Op is a single update in the algebra: Add, Remove, Set, Update or Increment.
// The set is closed; wire ops are decoded into it once at the log boundary.
type Op interface {
	Method() ir.Method
	wire() ir.WireOp
}

// Add appends a new item to a LIST. The Store assigns its "_id".
type Add struct {
	Doc ir.Object
}

// Remove deletes the LIST item with the given id.
type Remove struct {
	ID int64
}

// Set replaces a HASH (or the LIST item selected by Filter) wholesale,
// or the value under Path when one is given.
type Set struct {
	Path   string
	Filter *ir.Filter
	Doc    ir.Object
}

// Update modifies an existing object. Fields in SetFields overwrite;
// objects in MergeFields are merged one level deep into the existing value.
type Update struct {
	Path        string
	Filter      *ir.Filter
	SetFields   ir.Object
	MergeFields ir.Object
}

// Increment adds one to a COUNTER.
type Increment struct{}

func (Add) Method() ir.Method       { return ir.MethodAdd }
func (Remove) Method() ir.Method    { return ir.MethodRemove }
func (Set) Method() ir.Method       { return ir.MethodSet }
func (Update) Method() ir.Method    { return ir.MethodUpdate }
func (Increment) Method() ir.Method { return ir.MethodInc }

func (o Add) wire() ir.WireOp {
	return ir.WireOp{Method: ir.MethodAdd, Doc: o.Doc}
}

func (o Remove) wire() ir.WireOp {
	return ir.WireOp{Method: ir.MethodRemove, Filter: &ir.Filter{ID: o.ID}}
}

func (o Set) wire() ir.WireOp {
	return ir.WireOp{Method: ir.MethodSet, Path: o.Path, Filter: o.Filter, Doc: o.Doc}
}

func (o Update) wire() ir.WireOp {
	doc := ir.Object{}
	if o.SetFields != nil {
		doc["$set"] = o.SetFields
	}
	if o.MergeFields != nil {
		doc["$merge"] = o.MergeFields
	}
	return ir.WireOp{Method: ir.MethodUpdate, Path: o.Path, Filter: o.Filter, Doc: doc}
}

func (Increment) wire() ir.WireOp {
	return ir.WireOp{Method: ir.MethodInc}
}

// ByID is a convenience filter constructor.
func ByID(id int64) *ir.Filter {
	return &ir.Filter{ID: id}
}

// EncodeOp converts a typed op to its wire form.
func EncodeOp(op Op) ir.WireOp {
	return op.wire()
}

// DecodeOp converts a wire op into the typed algebra.
// An unknown method or malformed op is an invariant violation.
func DecodeOp(w ir.WireOp) (Op, error) {
	switch w.Method {
	case ir.MethodAdd:
		return Add{Doc: w.Doc}, nil
	case ir.MethodRemove:
		if w.Filter == nil {
			return nil, Invariant(CodeInvalidOp, "RM requires a filter")
		}
		return Remove{ID: w.Filter.ID}, nil
	case ir.MethodSet:
		return Set{Path: w.Path, Filter: w.Filter, Doc: w.Doc}, nil
	case ir.MethodUpdate:
		u := Update{Path: w.Path, Filter: w.Filter}
		for k, v := range w.Doc {
			obj, ok := v.(ir.Object)
			if !ok {
				return nil, Invariant(CodeInvalidOp, "UPDATE %s must be an object", k)
			}
			switch k {
			case "$set":
				u.SetFields = obj
			case "$merge":
				u.MergeFields = obj
			default:
				return nil, Invariant(CodeInvalidOp, "UPDATE doc key %q: want $set or $merge", k)
			}
		}
		if u.SetFields == nil && u.MergeFields == nil {
			return nil, Invariant(CodeInvalidOp, "UPDATE requires $set or $merge")
		}
		return u, nil
	case ir.MethodInc:
		return Increment{}, nil
	default:
		return nil, Invariant(CodeUnknownMethod, "unknown update method %q", w.Method)
	}
}

// Batch is the typed form of ir.UpdateBatch.
type Batch struct {
	Control ir.Control
	Updates map[string][]Op
}

// Empty reports whether the batch carries no ops.
func (b Batch) Empty() bool {
	for _, ops := range b.Updates {
		if len(ops) > 0 {
			return false
		}
	}
	return true
}

// Wire converts the batch for appending to the log.
func (b Batch) Wire() ir.UpdateBatch {
	out := ir.UpdateBatch{
		Control: b.Control,
		Updates: make(map[string][]ir.WireOp, len(b.Updates)),
	}
	for slice, ops := range b.Updates {
		if len(ops) == 0 {
			continue
		}
		wops := make([]ir.WireOp, len(ops))
		for i, op := range ops {
			wops[i] = op.wire()
		}
		out.Updates[slice] = wops
	}
	return out
}

// DecodeBatch converts a batch read from the log.
func DecodeBatch(w ir.UpdateBatch) (Batch, error) {
	b := Batch{
		Control: w.Control,
		Updates: make(map[string][]Op, len(w.Updates)),
	}
	for slice, wops := range w.Updates {
		ops := make([]Op, len(wops))
		for i, wop := range wops {
			op, err := DecodeOp(wop)
			if err != nil {
				if ie, ok := err.(*InvariantError); ok {
					ie.Slice = slice
				}
				return Batch{}, err
			}
			ops[i] = op
		}
		b.Updates[slice] = ops
	}
	return b, nil
}

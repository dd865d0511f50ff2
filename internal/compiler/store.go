package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/state"
)

// CompileStore parses a CUE value into a store Definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the store struct itself:
//
//	store: shop: {
//		slices: {
//			orders:    {kind: "LIST", id_start: 1, display_format: "ORD-%05d"}
//			settings:  {kind: "HASH", init: {open: true}}
//			order_seq: {kind: "COUNTER"}
//		}
//	}
//
// Slices keep their declaration order, which is the order ops are applied in.
func CompileStore(v cue.Value) (state.Definition, error) {
	if err := v.Err(); err != nil {
		return state.Definition{}, formatCUEError(err)
	}

	def := state.Definition{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = labels[len(labels)-1].String()
	}

	slicesVal := v.LookupPath(cue.ParsePath("slices"))
	if !slicesVal.Exists() {
		return def, &CompileError{Field: "slices", Message: "slices are required", Pos: v.Pos()}
	}
	iter, err := slicesVal.Fields()
	if err != nil {
		return def, formatCUEError(err)
	}
	for iter.Next() {
		sd, err := compileSlice(iter.Label(), iter.Value())
		if err != nil {
			return def, err
		}
		def.Slices = append(def.Slices, sd)
	}
	if len(def.Slices) == 0 {
		return def, &CompileError{Field: "slices", Message: "at least one slice is required", Pos: v.Pos()}
	}

	if err := def.Validate(); err != nil {
		return def, &CompileError{Field: "store." + def.Name, Message: err.Error(), Pos: v.Pos()}
	}
	return def, nil
}

func compileSlice(name string, v cue.Value) (state.SliceDef, error) {
	sd := state.SliceDef{Name: name}
	field := func(f string) string { return fmt.Sprintf("slices.%s.%s", name, f) }

	kind, err := v.LookupPath(cue.ParsePath("kind")).String()
	if err != nil {
		return sd, &CompileError{Field: field("kind"), Message: "kind is required (LIST, HASH or COUNTER)", Pos: v.Pos()}
	}
	sd.Kind = state.Kind(kind)

	if idv := v.LookupPath(cue.ParsePath("id_start")); idv.Exists() {
		n, err := idv.Int64()
		if err != nil {
			return sd, formatCUEError(err)
		}
		sd.IDStart = n
	}
	for f, dst := range map[string]*string{
		"display_format": &sd.DisplayFormat,
		"display_field":  &sd.DisplayField,
	} {
		if sv := v.LookupPath(cue.ParsePath(f)); sv.Exists() {
			s, err := sv.String()
			if err != nil {
				return sd, formatCUEError(err)
			}
			*dst = s
		}
	}

	if iv := v.LookupPath(cue.ParsePath("init")); iv.Exists() {
		val, err := toValue(iv)
		if err != nil {
			return sd, err
		}
		obj, ok := val.(ir.Object)
		if !ok {
			return sd, &CompileError{Field: field("init"), Message: "init must be a struct", Pos: iv.Pos()}
		}
		sd.Init = obj
	}
	return sd, nil
}

// toValue converts a concrete CUE value into the document model.
// Floats are forbidden: money and counts are integers.
func toValue(v cue.Value) (ir.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	switch v.IncompleteKind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		it, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.Array{}
		for it.Next() {
			elem, err := toValue(it.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		it, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.Object{}
		for it.Next() {
			elem, err := toValue(it.Value())
			if err != nil {
				return nil, err
			}
			out[it.Label()] = elem
		}
		return out, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported or non-concrete value: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileStores compiles every store under the top-level "store" field of v,
// in declaration order.
func CompileStores(v cue.Value) ([]state.Definition, error) {
	storesVal := v.LookupPath(cue.ParsePath("store"))
	if !storesVal.Exists() {
		return nil, nil
	}
	iter, err := storesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var defs []state.Definition
	for iter.Next() {
		def, err := CompileStore(iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// CompileSource compiles CUE source text; filename is used in positions.
func CompileSource(filename string, src []byte) ([]state.Definition, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileStores(v)
}

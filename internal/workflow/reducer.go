package workflow

import (
	"fmt"

	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/state"
)

// SliceName is the LIST slice holding process records.
const SliceName = "processor"

// Action types handled by the processor reducer.
const (
	ActionNew     = "processor/NEW"
	ActionStep    = "processor/STEP"
	ActionCleanup = "processor/CLEANUP"
)

// Definition returns the Store definition for a processor named name.
// Process ids start at 0.
func Definition(name string) state.Definition {
	return state.Definition{
		Name:   name,
		Slices: []state.SliceDef{{Name: SliceName, Kind: state.KindList}},
	}
}

// ProcessReducer owns the processor slice.
//
//	NEW      {context_object}                                    ADD a record at function_idx 0
//	STEP     {_id, function_idx, complete, options, lastLinkedRes} UPDATE $set on the record;
//	         function_idx never moves backward
//	CLEANUP  {}                                                  RM every complete record
func ProcessReducer() engine.Reducer {
	return engine.Reducer{Slice: SliceName, Fn: reduceProcess}
}

func reduceProcess(in engine.ReduceInput) (*ir.Info, []state.Op) {
	switch in.Action.Type {
	case ActionNew:
		ctxObj, ok := in.Action.Payload.Obj("context_object")
		if !ok {
			ctxObj = ir.Object{}
		}
		id, _ := in.State.NextID(SliceName)
		return &ir.Info{Data: ir.Object{"_id": ir.Int(id)}}, []state.Op{
			state.Add{Doc: ir.Object{
				"function_idx":   ir.Int(0),
				"complete":       ir.Bool(false),
				"options":        ir.Object{},
				"context_object": ctxObj,
				"lastLinkedRes":  ir.Object{},
			}},
		}

	case ActionStep:
		p := in.Action.Payload
		id, ok := p.Int("_id")
		if !ok {
			return fail("STEP without _id"), nil
		}
		cur, ok := in.State.GetValue(SliceName, "complete", id)
		if !ok {
			return fail(fmt.Sprintf("process %d not found", id)), nil
		}
		if done, _ := cur.(ir.Bool); bool(done) {
			return fail(fmt.Sprintf("process %d already complete", id)), nil
		}
		if next, ok := p.Int("function_idx"); ok {
			prev, _ := in.State.GetValue(SliceName, "function_idx", id)
			if stored, _ := prev.(ir.Int); next < int64(stored) {
				return fail(fmt.Sprintf("process %d: function_idx %d is behind stored %d", id, next, stored)), nil
			}
		}
		set := ir.Object{}
		for _, k := range []string{"function_idx", "complete", "options", "lastLinkedRes"} {
			if v, ok := p[k]; ok {
				set[k] = v
			}
		}
		return &ir.Info{Data: ir.Object{"_id": ir.Int(id)}}, []state.Op{
			state.Update{Filter: state.ByID(id), SetFields: set},
		}

	case ActionCleanup:
		var ops []state.Op
		for _, item := range in.State.Items(SliceName) {
			if done, _ := item.Bool("complete"); done {
				id, _ := item.Int("_id")
				ops = append(ops, state.Remove{ID: id})
			}
		}
		return &ir.Info{Data: ir.Object{"removed": ir.Int(int64(len(ops)))}}, ops
	}
	return nil, nil
}

func fail(msg string) *ir.Info {
	return &ir.Info{Failed: true, Message: msg}
}

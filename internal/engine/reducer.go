package engine

import (
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/state"
)

// PassIn carries a dependency reducer's output to its dependent.
type PassIn struct {
	Slice string
	Info  *ir.Info
	Ops   []state.Op
}

// ReduceInput is everything a reducer sees.
//
// State is the Store as of the start of the dispatch; ops returned by other
// reducers in the same dispatch are not visible in it.
type ReduceInput struct {
	Action ir.Action
	Slice  string
	State  state.Reader
	PassIn *PassIn
}

// ReduceFunc maps an action to ops on its own slice. It must be pure.
// Returning (nil, nil) means the reducer has nothing to say about the action.
type ReduceFunc func(in ReduceInput) (*ir.Info, []state.Op)

// Reducer binds a ReduceFunc to the slice it owns.
//
// PassIn, when set, names another registered reducer that runs first, inside
// the same dispatch. Its ops are stored under its own slice and its output
// is handed to this reducer. The dependency is then run only through its
// dependent, never on its own.
type Reducer struct {
	Slice  string
	PassIn string
	Fn     ReduceFunc
}

// registry is the reducer list resolved at construction.
type registry struct {
	order   []Reducer
	bySlice map[string]Reducer
	// passInTargets are slices run only by their dependent.
	passInTargets map[string]string
}

func newRegistry(st *state.Store, reducers []Reducer) (*registry, error) {
	r := &registry{
		order:         make([]Reducer, len(reducers)),
		bySlice:       make(map[string]Reducer, len(reducers)),
		passInTargets: make(map[string]string),
	}
	copy(r.order, reducers)

	name := st.Name()
	for _, red := range reducers {
		if red.Slice == "" {
			return nil, registryError(name, "", "reducer without slice key")
		}
		if red.Fn == nil {
			return nil, registryError(name, red.Slice, "reducer has no function")
		}
		if _, dup := r.bySlice[red.Slice]; dup {
			return nil, registryError(name, red.Slice, "slice has two reducers")
		}
		if !st.Has(red.Slice) {
			return nil, registryError(name, red.Slice, "slice not defined by store")
		}
		r.bySlice[red.Slice] = red
	}

	for _, red := range reducers {
		if red.PassIn == "" {
			continue
		}
		dep, ok := r.bySlice[red.PassIn]
		switch {
		case red.PassIn == red.Slice:
			return nil, registryError(name, red.Slice, "reducer cannot pass in to itself")
		case !ok:
			return nil, registryError(name, red.Slice, "pass-in %q is not registered", red.PassIn)
		case dep.PassIn != "":
			return nil, registryError(name, red.Slice, "pass-in %q itself depends on %q", red.PassIn, dep.PassIn)
		}
		if other, taken := r.passInTargets[red.PassIn]; taken {
			return nil, registryError(name, red.Slice, "pass-in %q already used by %q", red.PassIn, other)
		}
		r.passInTargets[red.PassIn] = red.Slice
	}
	return r, nil
}

// Result is the per-slice outcome of one dispatch.
type Result map[string]ir.Info

// Failed reports whether any reducer flagged the action as failed.
// The flag is advisory: ops from every reducer were still applied.
func (r Result) Failed() bool {
	for _, info := range r {
		if info.Failed {
			return true
		}
	}
	return false
}

// FailedSlices lists the slices whose reducer reported failure.
func (r Result) FailedSlices() []string {
	var out []string
	for slice, info := range r {
		if info.Failed {
			out = append(out, slice)
		}
	}
	return out
}

// Value returns the result as a document: {slice: {failed, message, data?}}.
func (r Result) Value() ir.Object {
	out := make(ir.Object, len(r))
	for slice, info := range r {
		doc := ir.Object{"failed": ir.Bool(info.Failed)}
		if info.Message != "" {
			doc["message"] = ir.String(info.Message)
		}
		if info.Data != nil {
			doc["data"] = info.Data
		}
		out[slice] = doc
	}
	return out
}

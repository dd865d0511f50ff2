package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/state"
	"github.com/roach88/statehub/internal/workflow"
)

// Factory actions.
const (
	ActionJobStart  = "job/start"
	ActionJobFinish = "job/finish"
)

// FactoryReducers returns the reducers for the factory store.
//
//	job/start   {order, item, qty}  new running job, fails at capacity
//	job/finish  {id}                job done, machine freed
func FactoryReducers() []engine.Reducer {
	return []engine.Reducer{
		{Slice: "jobs", Fn: reduceJobs},
		{Slice: "machines", Fn: reduceMachines},
	}
}

func machineLoad(st state.Reader) (busy, capacity int64) {
	return intAt(st, "machines", "busy"), intAt(st, "machines", "capacity")
}

func runningJob(st state.Reader, id int64) bool {
	v, ok := st.GetValue("jobs", "status", id)
	return ok && v == ir.String("running")
}

func reduceJobs(in engine.ReduceInput) (*ir.Info, []state.Op) {
	p := in.Action.Payload
	switch in.Action.Type {
	case ActionJobStart:
		if busy, capacity := machineLoad(in.State); busy >= capacity {
			return failed(fmt.Sprintf("factory at capacity (%d/%d)", busy, capacity)), nil
		}
		id, _ := in.State.NextID("jobs")
		return &ir.Info{Data: ir.Object{"_id": ir.Int(id)}}, []state.Op{state.Add{Doc: ir.Object{
			"order":  p["order"],
			"item":   p["item"],
			"qty":    p["qty"],
			"status": ir.String("running"),
		}}}

	case ActionJobFinish:
		id, _ := p.Int("id")
		if !runningJob(in.State, id) {
			return failed(fmt.Sprintf("job %d is not running", id)), nil
		}
		return &ir.Info{Data: ir.Object{"_id": ir.Int(id)}}, []state.Op{
			state.Update{Filter: state.ByID(id), SetFields: ir.Object{"status": ir.String("done")}},
		}
	}
	return nil, nil
}

func reduceMachines(in engine.ReduceInput) (*ir.Info, []state.Op) {
	busy, capacity := machineLoad(in.State)
	switch in.Action.Type {
	case ActionJobStart:
		if busy >= capacity {
			return nil, nil
		}
		busy++
	case ActionJobFinish:
		id, _ := in.Action.Payload.Int("id")
		if !runningJob(in.State, id) {
			return nil, nil
		}
		busy--
	default:
		return nil, nil
	}
	return nil, []state.Op{state.Update{SetFields: ir.Object{"busy": ir.Int(busy)}}}
}

// FactoryConfig tunes the build workflow.
type FactoryConfig struct {
	// BuildTime is how long a job sleeps between start and inspection.
	BuildTime time.Duration

	// Inspections is how many inspection passes a job needs.
	Inspections int64

	// InspectInterval is the wait between inspection passes.
	InspectInterval time.Duration
}

// DefaultFactoryConfig is used by the CLI.
var DefaultFactoryConfig = FactoryConfig{
	BuildTime:       5 * time.Second,
	Inspections:     2,
	InspectInterval: time.Second,
}

// Context keys read by the factory chain.
const (
	KeyOrder = "order"
	KeyItem  = "item"
	KeyQty   = "qty"
)

// FactoryChain builds an order: start a job, wait BuildTime, inspect until
// enough passes are done, finish the job. If the factory is at capacity the
// start fails and the process completes without a job.
func FactoryChain(cfg FactoryConfig) []workflow.Middleware {
	return []workflow.Middleware{
		// start
		func(_ context.Context, pc workflow.ProcessContext) (workflow.Step, error) {
			order, _ := pc.Value(KeyOrder)
			item, _ := pc.Value(KeyItem)
			qty, _ := pc.Value(KeyQty)
			if order == nil {
				return workflow.Step{}, fmt.Errorf("process %d: no order in context", pc.ID())
			}
			return workflow.Step{Linked: []ir.Action{{
				Type:    ActionJobStart,
				Payload: ir.Object{"order": order, "item": orNull(item), "qty": orNull(qty)},
			}}}, nil
		},
		// build
		func(_ context.Context, pc workflow.ProcessContext) (workflow.Step, error) {
			return workflow.Step{Options: workflow.Options{
				SleepUntil: &workflow.Sleep{Until: pc.Now().Add(cfg.BuildTime)},
			}}, nil
		},
		// inspect
		func(_ context.Context, pc workflow.ProcessContext) (workflow.Step, error) {
			return workflow.Step{Options: workflow.Options{
				RetryUntil: &workflow.Retry{
					IsTrue:   pc.RetryCount()+1 >= cfg.Inspections,
					Interval: cfg.InspectInterval,
				},
			}}, nil
		},
		// finish
		func(_ context.Context, pc workflow.ProcessContext) (workflow.Step, error) {
			id, ok := JobID(pc.LastLinked())
			if !ok {
				return workflow.Step{}, fmt.Errorf("process %d: no job id from start", pc.ID())
			}
			return workflow.Step{Linked: []ir.Action{{
				Type:    ActionJobFinish,
				Payload: ir.Object{"id": ir.Int(id)},
			}}}, nil
		},
	}
}

// JobID extracts the job id from a linked result.
func JobID(lastLinked ir.Object) (int64, bool) {
	jobs, ok := lastLinked.Obj("jobs")
	if !ok {
		return 0, false
	}
	data, ok := jobs.Obj("data")
	if !ok {
		return 0, false
	}
	return data.Int("_id")
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}

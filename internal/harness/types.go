package harness

import "github.com/roach88/statehub/internal/ir"

// Trace event kinds, one per step kind.
const (
	KindDispatch   = "dispatch"
	KindStart      = "start"
	KindAdvance    = "advance"
	KindScan       = "scan"
	KindCleanup    = "cleanup"
	KindCheckpoint = "checkpoint"
)

// TraceEvent records what one scenario step did.
type TraceEvent struct {
	Phase  string    `json:"phase"` // "setup" or "flow"
	Step   int       `json:"step"`
	Kind   string    `json:"kind"`
	Store  string    `json:"store,omitempty"`
	Action string    `json:"action,omitempty"`
	Input  ir.Object `json:"input,omitempty"`
	Output ir.Object `json:"output,omitempty"`
	Seq    int64     `json:"seq"` // log sequence after the step
}

// Value returns the event as a document for canonical serialization.
func (e TraceEvent) Value() ir.Object {
	out := ir.Object{
		"phase": ir.String(e.Phase),
		"step":  ir.Int(int64(e.Step)),
		"kind":  ir.String(e.Kind),
		"seq":   ir.Int(e.Seq),
	}
	if e.Store != "" {
		out["store"] = ir.String(e.Store)
	}
	if e.Action != "" {
		out["action"] = ir.String(e.Action)
	}
	if e.Input != nil {
		out["input"] = e.Input
	}
	if e.Output != nil {
		out["output"] = e.Output
	}
	return out
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, setup first.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expect and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is {store: document} for every store after the flow.
	State ir.Object `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  ir.Object{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

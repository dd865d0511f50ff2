package workflow

import (
	"time"

	"github.com/roach88/statehub/internal/ir"
)

// Keys the processor writes into every context_object.
const (
	KeyTrigger   = "trigger"
	KeyRequestID = "request_id"
)

// ProcessContext is what a middleware sees of its process. It is a value:
// built once per step by copying the processor's base context and the
// record's fields, never shared with the Store.
type ProcessContext struct {
	id         int64
	index      int
	retryCount int64
	now        time.Time
	values     ir.Object
	lastLinked ir.Object
}

func newProcessContext(base ir.Object, rec Record, index int, retryCount int64, now time.Time) ProcessContext {
	values := make(ir.Object, len(base)+len(rec.Context))
	for k, v := range base {
		values[k] = v
	}
	for k, v := range rec.Context {
		values[k] = v
	}
	linked := rec.LastLinked.Clone()
	if linked == nil {
		linked = ir.Object{}
	}
	return ProcessContext{
		id:         rec.ID,
		index:      index,
		retryCount: retryCount,
		now:        now,
		values:     values,
		lastLinked: linked,
	}
}

// ID is the process record id.
func (c ProcessContext) ID() int64 { return c.id }

// Index is the middleware index being run.
func (c ProcessContext) Index() int { return c.index }

// RetryCount is 0 on the first attempt of a step and grows by one on each retry.
func (c ProcessContext) RetryCount() int64 { return c.retryCount }

// Now is the processor clock at the start of the step.
func (c ProcessContext) Now() time.Time { return c.now }

// Value looks key up in the process context, then the base context.
func (c ProcessContext) Value(key string) (ir.Value, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Str is Value for string entries.
func (c ProcessContext) Str(key string) (string, bool) { return c.values.Str(key) }

// Int is Value for integer entries.
func (c ProcessContext) Int(key string) (int64, bool) { return c.values.Int(key) }

// Trigger returns the value the process was started with, if any.
func (c ProcessContext) Trigger() (ir.Value, bool) { return c.Value(KeyTrigger) }

// RequestID returns the id assigned when the process was started.
func (c ProcessContext) RequestID() string {
	id, _ := c.values.Str(KeyRequestID)
	return id
}

// LastLinked returns the results of the most recent linked dispatch, keyed
// by linked slice. Steps use it to find ids an earlier attempt created.
func (c ProcessContext) LastLinked() ir.Object { return c.lastLinked.Clone() }

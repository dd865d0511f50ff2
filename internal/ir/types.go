package ir

// Method names an update operation on the wire.
type Method string

const (
	MethodAdd    Method = "ADD"
	MethodRemove Method = "RM"
	MethodSet    Method = "SET"
	MethodUpdate Method = "UPDATE"
	MethodInc    Method = "INC"
)

// Filter selects a LIST item by id.
type Filter struct {
	ID int64 `json:"_id"`
}

// WireOp is the persisted form of a single update operation.
// It is decoded into a typed op exactly once, when it crosses the log boundary.
type WireOp struct {
	Method Method  `json:"method"`
	Path   string  `json:"path,omitempty"`
	Filter *Filter `json:"filter,omitempty"`
	Doc    Object  `json:"doc,omitempty"`
}

// Control is the per-Store bookkeeping carried by every batch.
// HeadSequence is the number of batches applied so far and doubles as an
// optimistic concurrency token: a batch applies only if it matches.
type Control struct {
	HeadSequence int64 `json:"head_sequence"`
	LastUpdated  int64 `json:"lastupdated"` // unix milliseconds
}

// UpdateBatch holds every slice update one dispatch produced for one Store.
type UpdateBatch struct {
	Control Control             `json:"control"`
	Updates map[string][]WireOp `json:"updates"`
}

// LogRecord is one entry of the durable append log.
// Batches is keyed by Store name; a record may touch several Stores.
type LogRecord struct {
	Seq       int64                  `json:"seq"`
	Partition string                 `json:"partition"`
	Timestamp int64                  `json:"timestamp"` // unix milliseconds
	Batches   map[string]UpdateBatch `json:"batches"`
}

// Action is the input to a dispatch.
type Action struct {
	Type    string `json:"type"`
	Payload Object `json:"payload,omitempty"`
}

// Info is what a reducer reports about an action it handled.
// Failed is advisory: it never rolls back ops already collected.
type Info struct {
	Failed  bool   `json:"failed"`
	Message string `json:"message,omitempty"`
	Data    Object `json:"data,omitempty"`
}

// Value returns the op as a document.
func (w WireOp) Value() Object {
	out := Object{"method": String(w.Method)}
	if w.Path != "" {
		out["path"] = String(w.Path)
	}
	if w.Filter != nil {
		out["filter"] = Object{"_id": Int(w.Filter.ID)}
	}
	if w.Doc != nil {
		out["doc"] = w.Doc
	}
	return out
}

// Value returns the control block as a document.
func (c Control) Value() Object {
	return Object{
		"head_sequence": Int(c.HeadSequence),
		"lastupdated":   Int(c.LastUpdated),
	}
}

// Value returns the batch as a document.
func (b UpdateBatch) Value() Object {
	updates := make(Object, len(b.Updates))
	for slice, ops := range b.Updates {
		arr := make(Array, len(ops))
		for i, op := range ops {
			arr[i] = op.Value()
		}
		updates[slice] = arr
	}
	return Object{"control": b.Control.Value(), "updates": updates}
}

// BatchesValue returns a record's batches keyed by Store name.
func BatchesValue(batches map[string]UpdateBatch) Object {
	out := make(Object, len(batches))
	for name, b := range batches {
		out[name] = b.Value()
	}
	return out
}

// Value returns the whole record as a document.
func (r LogRecord) Value() Object {
	return Object{
		"seq":       Int(r.Seq),
		"partition": String(r.Partition),
		"timestamp": Int(r.Timestamp),
		"batches":   BatchesValue(r.Batches),
	}
}

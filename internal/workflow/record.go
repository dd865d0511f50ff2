package workflow

import (
	"fmt"
	"time"

	"github.com/roach88/statehub/internal/ir"
)

// Sleep pauses a process until a wall-clock time or until a named predicate
// holds. Exactly one of Until and Predicate should be set.
type Sleep struct {
	Until     time.Time
	Predicate string
}

// Retry repeats the step that requested it until IsTrue.
//
// When a step returns Retry with IsTrue false, the process suspends; a scan
// after Interval re-invokes the same step with RetryCount one higher.
type Retry struct {
	IsTrue   bool
	Interval time.Duration

	// Count and NextAt are filled in by the processor.
	Count  int64
	NextAt time.Time
}

// Options are the scheduling fields a step hands to the next one.
type Options struct {
	SleepUntil *Sleep
	RetryUntil *Retry
	Complete   bool
}

// pending reports whether the options suspend the run.
func (o Options) pending() bool {
	return o.SleepUntil != nil || (o.RetryUntil != nil && !o.RetryUntil.IsTrue)
}

// Value encodes options as stored in a Record:
//
//	{"sleep_until": {"at": <ms>} | {"predicate": "name"},
//	 "retry_until": {"is_true": false, "interval": <ms>, "_retry_count": 2, "next_at": <ms>},
//	 "complete": true}
func (o Options) Value() ir.Object {
	doc := ir.Object{}
	if s := o.SleepUntil; s != nil {
		if s.Predicate != "" {
			doc["sleep_until"] = ir.Object{"predicate": ir.String(s.Predicate)}
		} else {
			doc["sleep_until"] = ir.Object{"at": ir.Int(s.Until.UnixMilli())}
		}
	}
	if r := o.RetryUntil; r != nil {
		doc["retry_until"] = ir.Object{
			"is_true":      ir.Bool(r.IsTrue),
			"interval":     ir.Int(r.Interval.Milliseconds()),
			"_retry_count": ir.Int(r.Count),
			"next_at":      ir.Int(r.NextAt.UnixMilli()),
		}
	}
	if o.Complete {
		doc["complete"] = ir.Bool(true)
	}
	return doc
}

// OptionsFrom decodes the stored form. Missing fields are zero.
func OptionsFrom(doc ir.Object) Options {
	var o Options
	if s, ok := doc.Obj("sleep_until"); ok {
		sl := &Sleep{}
		if name, ok := s.Str("predicate"); ok {
			sl.Predicate = name
		} else if at, ok := s.Int("at"); ok {
			sl.Until = time.UnixMilli(at).UTC()
		}
		o.SleepUntil = sl
	}
	if r, ok := doc.Obj("retry_until"); ok {
		rt := &Retry{}
		rt.IsTrue, _ = r.Bool("is_true")
		if ms, ok := r.Int("interval"); ok {
			rt.Interval = time.Duration(ms) * time.Millisecond
		}
		rt.Count, _ = r.Int("_retry_count")
		if at, ok := r.Int("next_at"); ok {
			rt.NextAt = time.UnixMilli(at).UTC()
		}
		o.RetryUntil = rt
	}
	o.Complete, _ = doc.Bool("complete")
	return o
}

// Record is one process as stored in the processor slice.
type Record struct {
	ID          int64
	FunctionIdx int
	Complete    bool
	Options     Options
	Context     ir.Object // context_object
	LastLinked  ir.Object // lastLinkedRes
}

// RecordFrom decodes a processor slice item.
func RecordFrom(doc ir.Object) (Record, error) {
	id, ok := doc.Int("_id")
	if !ok {
		return Record{}, fmt.Errorf("process record without _id")
	}
	idx, ok := doc.Int("function_idx")
	if !ok {
		return Record{}, fmt.Errorf("process %d: missing function_idx", id)
	}
	rec := Record{ID: id, FunctionIdx: int(idx)}
	rec.Complete, _ = doc.Bool("complete")
	if opts, ok := doc.Obj("options"); ok {
		rec.Options = OptionsFrom(opts)
	}
	rec.Context, _ = doc.Obj("context_object")
	rec.LastLinked, _ = doc.Obj("lastLinkedRes")
	return rec, nil
}

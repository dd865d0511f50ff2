package state

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/statehub/internal/ir"
)

// snapshot is one immutable version of a Store.
type snapshot struct {
	control ir.Control
	slices  map[string]sliceValue
}

// Store is the in-memory projection of one named aggregate.
//
// Thread-safety: Apply must be called by a single writer (the owning
// Manager, or the recovery loop before the Manager starts). Reads are safe
// from any goroutine; they observe whole snapshots, never a torn slice.
type Store struct {
	def  Definition
	defs map[string]SliceDef
	cur  atomic.Pointer[snapshot]
}

// NewStore creates an empty Store for def. The definition must be valid.
func NewStore(def Definition) (*Store, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		def:  def,
		defs: make(map[string]SliceDef, len(def.Slices)),
	}
	slices := make(map[string]sliceValue, len(def.Slices))
	for _, sd := range def.Slices {
		s.defs[sd.Name] = sd
		slices[sd.Name] = initialValue(sd)
	}
	s.cur.Store(&snapshot{slices: slices})
	return s, nil
}

// MustNewStore is NewStore for static definitions.
func MustNewStore(def Definition) *Store {
	s, err := NewStore(def)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the Store name. Log records key their batches by it.
func (s *Store) Name() string { return s.def.Name }

// Definition returns the Store definition.
func (s *Store) Definition() Definition { return s.def }

// Has reports whether the Store defines slice.
func (s *Store) Has(slice string) bool {
	_, ok := s.defs[slice]
	return ok
}

// Control returns the current control block.
func (s *Store) Control() ir.Control { return s.cur.Load().control }

// Head returns the number of batches applied.
func (s *Store) Head() int64 { return s.cur.Load().control.HeadSequence }

// Apply folds a batch into the Store.
//
// The batch's control head must equal the Store head; on success the head
// advances by exactly one. Any error is an InvariantError and leaves the
// Store untouched.
func (s *Store) Apply(b Batch) error {
	p, err := s.Prepare(b)
	if err != nil {
		return err
	}
	return p.Commit()
}

// Pending is a folded batch that has not been published yet.
type Pending struct {
	s    *Store
	prev *snapshot
	next *snapshot
}

// Prepare validates and folds b against the current snapshot without
// publishing it. The Manager prepares before appending to the log so a bad
// batch is caught before it becomes durable.
func (s *Store) Prepare(b Batch) (*Pending, error) {
	prev := s.cur.Load()
	if b.Control.HeadSequence != prev.control.HeadSequence {
		return nil, &InvariantError{
			Code:    CodeHeadMismatch,
			Message: fmt.Sprintf("batch head %d, store head %d", b.Control.HeadSequence, prev.control.HeadSequence),
			Store:   s.def.Name,
		}
	}

	next := &snapshot{
		control: ir.Control{
			HeadSequence: prev.control.HeadSequence + 1,
			LastUpdated:  b.Control.LastUpdated,
		},
		slices: make(map[string]sliceValue, len(prev.slices)),
	}
	for name, v := range prev.slices {
		next.slices[name] = v
	}

	for name := range b.Updates {
		if _, ok := s.defs[name]; !ok {
			return nil, &InvariantError{Code: CodeUnknownSlice, Message: "slice not defined", Store: s.def.Name, Slice: name}
		}
	}
	// Definition order keeps application deterministic.
	for _, sd := range s.def.Slices {
		ops := b.Updates[sd.Name]
		if len(ops) == 0 {
			continue
		}
		v, err := fold(sd, next.slices[sd.Name], ops)
		if err != nil {
			if ie, ok := err.(*InvariantError); ok {
				ie.Store = s.def.Name
			}
			return nil, err
		}
		next.slices[sd.Name] = v
	}
	return &Pending{s: s, prev: prev, next: next}, nil
}

// Commit publishes the folded snapshot. It fails if anything was applied
// since Prepare.
func (p *Pending) Commit() error {
	if !p.s.cur.CompareAndSwap(p.prev, p.next) {
		return &InvariantError{Code: CodeHeadMismatch, Message: "store changed since prepare", Store: p.s.def.Name}
	}
	return nil
}

// ApplyWire decodes and applies a batch read from the log.
func (s *Store) ApplyWire(w ir.UpdateBatch) error {
	b, err := DecodeBatch(w)
	if err != nil {
		if ie, ok := err.(*InvariantError); ok {
			ie.Store = s.def.Name
		}
		return err
	}
	return s.Apply(b)
}

// GetValue reads a slice. For a LIST, id selects one item (path then
// applies within it); without id the whole item array is returned. For a
// HASH, path selects a nested value. The returned value must not be modified.
func (s *Store) GetValue(slice, path string, id ...int64) (ir.Value, bool) {
	v, ok := s.cur.Load().slices[slice]
	if !ok {
		return nil, false
	}
	switch sv := v.(type) {
	case listValue:
		if len(id) == 0 {
			return sv.view(), true
		}
		idx := sv.indexOf(id[0])
		if idx < 0 {
			return nil, false
		}
		return getPath(sv.items[idx], splitPath(path))
	case hashValue:
		return getPath(sv.doc, splitPath(path))
	default:
		return sv.view(), true
	}
}

// Items returns the items of a LIST slice in order.
func (s *Store) Items(slice string) []ir.Object {
	v, ok := s.cur.Load().slices[slice].(listValue)
	if !ok {
		return nil
	}
	return v.items
}

// NextID returns the id the next ADD on slice will receive.
// Reducers use it to learn an id before their batch is applied.
func (s *Store) NextID(slice string) (int64, bool) {
	v, ok := s.cur.Load().slices[slice].(listValue)
	if !ok {
		return 0, false
	}
	return v.nextID, true
}

// Debug returns the whole Store as a document:
// {"control": {...}, "slices": {name: value}}.
func (s *Store) Debug() ir.Object {
	snap := s.cur.Load()
	slices := make(ir.Object, len(snap.slices))
	for name, v := range snap.slices {
		slices[name] = v.view()
	}
	return ir.Object{
		"control": ir.Object{
			"head_sequence": ir.Int(snap.control.HeadSequence),
			"lastupdated":   ir.Int(snap.control.LastUpdated),
		},
		"slices": slices,
	}
}

// Reader is a read-only view of a Store, handed to reducers.
type Reader interface {
	GetValue(slice, path string, id ...int64) (ir.Value, bool)
	Items(slice string) []ir.Object
	NextID(slice string) (int64, bool)
	Head() int64
}

var _ Reader = (*Store)(nil)

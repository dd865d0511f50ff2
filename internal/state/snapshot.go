package state

import (
	"fmt"

	"github.com/roach88/statehub/internal/ir"
)

// Snapshot returns the Store as a document suitable for a checkpoint.
// Unlike Debug, LIST slices keep their next id so a restore never reuses one:
//
//	{"control": {...}, "slices": {"orders": {"items": [...], "next_id": 7}, ...}}
func (s *Store) Snapshot() ir.Object {
	snap := s.cur.Load()
	slices := make(ir.Object, len(snap.slices))
	for name, v := range snap.slices {
		switch sv := v.(type) {
		case listValue:
			slices[name] = ir.Object{"items": sv.view(), "next_id": ir.Int(sv.nextID)}
		default:
			slices[name] = sv.view()
		}
	}
	return ir.Object{
		"control": ir.Object{
			"head_sequence": ir.Int(snap.control.HeadSequence),
			"lastupdated":   ir.Int(snap.control.LastUpdated),
		},
		"slices": slices,
	}
}

// Restore replaces the Store contents with a document produced by Snapshot.
// Slices missing from doc are reset to their initial value; slices doc has
// but the definition lacks are ignored.
func (s *Store) Restore(doc ir.Object) error {
	ctrl, ok := doc.Obj("control")
	if !ok {
		return fmt.Errorf("store %s: snapshot missing control", s.def.Name)
	}
	head, ok := ctrl.Int("head_sequence")
	if !ok || head < 0 {
		return fmt.Errorf("store %s: snapshot has invalid head_sequence", s.def.Name)
	}
	last, _ := ctrl.Int("lastupdated")
	raw, _ := doc.Obj("slices")

	next := &snapshot{
		control: ir.Control{HeadSequence: head, LastUpdated: last},
		slices:  make(map[string]sliceValue, len(s.def.Slices)),
	}
	for _, sd := range s.def.Slices {
		v, has := raw[sd.Name]
		if !has {
			next.slices[sd.Name] = initialValue(sd)
			continue
		}
		sv, err := restoreSlice(sd, v)
		if err != nil {
			return fmt.Errorf("store %s: slice %s: %w", s.def.Name, sd.Name, err)
		}
		next.slices[sd.Name] = sv
	}
	s.cur.Store(next)
	return nil
}

func restoreSlice(sd SliceDef, v ir.Value) (sliceValue, error) {
	switch sd.Kind {
	case KindList:
		obj, ok := v.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("LIST snapshot must be an object, got %T", v)
		}
		arr, _ := obj["items"].(ir.Array)
		nextID, ok := obj.Int("next_id")
		if !ok {
			return nil, fmt.Errorf("LIST snapshot missing next_id")
		}
		items := make([]ir.Object, len(arr))
		for i, e := range arr {
			it, ok := e.(ir.Object)
			if !ok {
				return nil, fmt.Errorf("items[%d] is %T, want object", i, e)
			}
			id, ok := it.Int("_id")
			if !ok || id >= nextID {
				return nil, fmt.Errorf("items[%d] has _id outside [.., %d)", i, nextID)
			}
			items[i] = it
		}
		return listValue{items: items, nextID: nextID}, nil
	case KindHash:
		obj, ok := v.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("HASH snapshot must be an object, got %T", v)
		}
		return hashValue{doc: obj}, nil
	case KindCounter:
		n, ok := v.(ir.Int)
		if !ok {
			return nil, fmt.Errorf("COUNTER snapshot must be an integer, got %T", v)
		}
		return counterValue{n: int64(n)}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", sd.Kind)
	}
}

// Reset returns the Store to its initial, empty state.
func (s *Store) Reset() {
	slices := make(map[string]sliceValue, len(s.def.Slices))
	for _, sd := range s.def.Slices {
		slices[sd.Name] = initialValue(sd)
	}
	s.cur.Store(&snapshot{slices: slices})
}

// Serialize returns the canonical JSON of Snapshot.
func (s *Store) Serialize() ([]byte, error) {
	return ir.MarshalCanonical(s.Snapshot())
}

// Deserialize restores the Store from bytes produced by Serialize.
func (s *Store) Deserialize(data []byte) error {
	v, err := ir.ParseValue(data)
	if err != nil {
		return fmt.Errorf("store %s: decode snapshot: %w", s.def.Name, err)
	}
	doc, ok := v.(ir.Object)
	if !ok {
		return fmt.Errorf("store %s: snapshot is %T, want object", s.def.Name, v)
	}
	return s.Restore(doc)
}

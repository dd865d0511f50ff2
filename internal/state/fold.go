package state

import (
	"fmt"
	"slices"

	"github.com/roach88/statehub/internal/ir"
)

// sliceValue is the immutable value of one slice.
type sliceValue interface {
	kind() Kind
	view() ir.Value
}

type listValue struct {
	items  []ir.Object
	nextID int64
}

type hashValue struct {
	doc ir.Object
}

type counterValue struct {
	n int64
}

func (listValue) kind() Kind    { return KindList }
func (hashValue) kind() Kind    { return KindHash }
func (counterValue) kind() Kind { return KindCounter }

func (l listValue) view() ir.Value {
	arr := make(ir.Array, len(l.items))
	for i, it := range l.items {
		arr[i] = it
	}
	return arr
}

func (h hashValue) view() ir.Value    { return h.doc }
func (c counterValue) view() ir.Value { return ir.Int(c.n) }

func (l listValue) indexOf(id int64) int {
	return slices.IndexFunc(l.items, func(it ir.Object) bool {
		got, ok := it.Int("_id")
		return ok && got == id
	})
}

func initialValue(def SliceDef) sliceValue {
	switch def.Kind {
	case KindList:
		return listValue{nextID: def.IDStart}
	case KindHash:
		doc := def.Init
		if doc == nil {
			doc = ir.Object{}
		}
		return hashValue{doc: doc}
	default:
		return counterValue{}
	}
}

// fold applies ops in order to cur and returns the new value.
// cur is never modified.
func fold(def SliceDef, cur sliceValue, ops []Op) (sliceValue, error) {
	for i, op := range ops {
		next, err := applyOp(def, cur, op)
		if err != nil {
			if ie, ok := err.(*InvariantError); ok {
				ie.Slice = def.Name
				ie.Message = fmt.Sprintf("op[%d] %s: %s", i, op.Method(), ie.Message)
			}
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func applyOp(def SliceDef, cur sliceValue, op Op) (sliceValue, error) {
	switch v := cur.(type) {
	case listValue:
		return applyList(def, v, op)
	case hashValue:
		return applyHash(v, op)
	case counterValue:
		if _, ok := op.(Increment); !ok {
			return nil, Invariant(CodeKindMismatch, "COUNTER only supports INC")
		}
		return counterValue{n: v.n + 1}, nil
	default:
		return nil, Invariant(CodeKindMismatch, "unknown slice value %T", cur)
	}
}

func applyList(def SliceDef, l listValue, op Op) (sliceValue, error) {
	switch o := op.(type) {
	case Add:
		if _, has := o.Doc["_id"]; has {
			return nil, Invariant(CodeInvalidOp, "ADD doc must not carry _id")
		}
		item := o.Doc.Clone()
		item["_id"] = ir.Int(l.nextID)
		if def.DisplayFormat != "" {
			item[def.displayField()] = ir.String(fmt.Sprintf(def.DisplayFormat, l.nextID))
		}
		items := make([]ir.Object, len(l.items), len(l.items)+1)
		copy(items, l.items)
		return listValue{items: append(items, item), nextID: l.nextID + 1}, nil

	case Remove:
		idx := l.indexOf(o.ID)
		if idx < 0 {
			return nil, Invariant(CodeMissingTarget, "no item with _id %d", o.ID)
		}
		items := make([]ir.Object, 0, len(l.items)-1)
		items = append(items, l.items[:idx]...)
		items = append(items, l.items[idx+1:]...)
		return listValue{items: items, nextID: l.nextID}, nil

	case Set:
		return replaceItem(l, o.Filter, func(item ir.Object) (ir.Object, error) {
			parts := splitPath(o.Path)
			if len(parts) == 0 {
				next := o.Doc.Clone()
				next["_id"] = item["_id"]
				if dv, ok := item[def.displayField()]; ok && def.DisplayFormat != "" {
					if _, set := next[def.displayField()]; !set {
						next[def.displayField()] = dv
					}
				}
				return next, nil
			}
			return setPath(item, parts, o.Doc), nil
		})

	case Update:
		return replaceItem(l, o.Filter, func(item ir.Object) (ir.Object, error) {
			return updateAt(item, o)
		})

	default:
		return nil, Invariant(CodeKindMismatch, "LIST does not support %s", op.Method())
	}
}

func replaceItem(l listValue, f *ir.Filter, fn func(ir.Object) (ir.Object, error)) (sliceValue, error) {
	if f == nil {
		return nil, Invariant(CodeInvalidOp, "LIST op requires a filter")
	}
	idx := l.indexOf(f.ID)
	if idx < 0 {
		return nil, Invariant(CodeMissingTarget, "no item with _id %d", f.ID)
	}
	next, err := fn(l.items[idx])
	if err != nil {
		return nil, err
	}
	items := slices.Clone(l.items)
	items[idx] = next
	return listValue{items: items, nextID: l.nextID}, nil
}

func applyHash(h hashValue, op Op) (sliceValue, error) {
	switch o := op.(type) {
	case Set:
		if o.Filter != nil {
			return nil, Invariant(CodeInvalidOp, "HASH SET does not take a filter")
		}
		parts := splitPath(o.Path)
		if len(parts) == 0 {
			doc := o.Doc
			if doc == nil {
				doc = ir.Object{}
			}
			return hashValue{doc: doc}, nil
		}
		return hashValue{doc: setPath(h.doc, parts, o.Doc)}, nil

	case Update:
		if o.Filter != nil {
			return nil, Invariant(CodeInvalidOp, "HASH UPDATE does not take a filter")
		}
		doc, err := updateAt(h.doc, o)
		if err != nil {
			return nil, err
		}
		return hashValue{doc: doc}, nil

	default:
		return nil, Invariant(CodeKindMismatch, "HASH does not support %s", op.Method())
	}
}

// updateAt applies $set and $merge to the object found at o.Path under root.
// The target must already exist.
func updateAt(root ir.Object, o Update) (ir.Object, error) {
	parts := splitPath(o.Path)
	var target ir.Object
	if len(parts) == 0 {
		target = root
	} else {
		v, ok := getPath(root, parts)
		if !ok {
			return nil, Invariant(CodeMissingTarget, "path %q does not exist", o.Path)
		}
		obj, ok := v.(ir.Object)
		if !ok {
			return nil, Invariant(CodeMissingTarget, "path %q is not an object", o.Path)
		}
		target = obj
	}

	next := target.Clone()
	for k, v := range o.SetFields {
		next[k] = v
	}
	for k, v := range o.MergeFields {
		incoming, isObj := v.(ir.Object)
		existing, hadObj := next[k].(ir.Object)
		if isObj && hadObj {
			merged := existing.Clone()
			for mk, mv := range incoming {
				merged[mk] = mv
			}
			next[k] = merged
			continue
		}
		next[k] = v
	}

	if len(parts) == 0 {
		return next, nil
	}
	return setPath(root, parts, next), nil
}

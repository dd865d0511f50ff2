package state

import (
	"strings"

	"github.com/roach88/statehub/internal/ir"
)

// splitPath turns "a.b.c" into its segments. The empty path is the root.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// getPath walks nested objects. Missing keys and non-object parents
// report false.
func getPath(v ir.Value, parts []string) (ir.Value, bool) {
	cur := v
	for _, p := range parts {
		obj, ok := cur.(ir.Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath returns a copy of obj with val placed at parts. Objects along the
// path are cloned, never modified; missing intermediates are created.
func setPath(obj ir.Object, parts []string, val ir.Value) ir.Object {
	if len(parts) == 0 {
		if o, ok := val.(ir.Object); ok {
			return o
		}
		return obj
	}
	out := obj.Clone()
	if len(parts) == 1 {
		out[parts[0]] = val
		return out
	}
	child, _ := obj[parts[0]].(ir.Object)
	if child == nil {
		child = ir.Object{}
	}
	out[parts[0]] = setPath(child, parts[1:], val)
	return out
}

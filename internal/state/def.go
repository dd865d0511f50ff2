package state

import (
	"fmt"

	"github.com/roach88/statehub/internal/ir"
)

// Kind is the shape of a slice, fixed by its definition.
type Kind string

const (
	KindList    Kind = "LIST"
	KindHash    Kind = "HASH"
	KindCounter Kind = "COUNTER"
)

// DefaultDisplayField is where a formatted display identifier is written
// when a LIST slice declares a DisplayFormat.
const DefaultDisplayField = "identifier"

// SliceDef declares one slice of a Store.
type SliceDef struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// IDStart is the first id a LIST hands out. Zero by default.
	IDStart int64 `json:"id_start,omitempty"`

	// DisplayFormat, when set on a LIST, is passed to fmt.Sprintf with the
	// new id to build a human-facing identifier such as "ORD-00042".
	DisplayFormat string `json:"display_format,omitempty"`
	DisplayField  string `json:"display_field,omitempty"`

	// Init seeds a HASH slice. Ignored for other kinds.
	Init ir.Object `json:"init,omitempty"`
}

// Definition declares a Store: its name and its slices in order.
type Definition struct {
	Name   string     `json:"name"`
	Slices []SliceDef `json:"slices"`
}

// Slice returns the named slice definition.
func (d Definition) Slice(name string) (SliceDef, bool) {
	for _, s := range d.Slices {
		if s.Name == name {
			return s, true
		}
	}
	return SliceDef{}, false
}

// Validate checks names are present and unique and kinds are known.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("store definition: name is required")
	}
	seen := make(map[string]bool, len(d.Slices))
	for i, s := range d.Slices {
		if s.Name == "" {
			return fmt.Errorf("store %s: slices[%d]: name is required", d.Name, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("store %s: duplicate slice %q", d.Name, s.Name)
		}
		seen[s.Name] = true
		switch s.Kind {
		case KindList, KindHash, KindCounter:
		default:
			return fmt.Errorf("store %s: slice %s: unknown kind %q", d.Name, s.Name, s.Kind)
		}
		if s.DisplayFormat != "" && s.Kind != KindList {
			return fmt.Errorf("store %s: slice %s: display_format only applies to LIST", d.Name, s.Name)
		}
	}
	return nil
}

func (s SliceDef) displayField() string {
	if s.DisplayField != "" {
		return s.DisplayField
	}
	return DefaultDisplayField
}

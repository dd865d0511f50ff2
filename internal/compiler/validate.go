package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/statehub/internal/state"
)

// Validation error codes (E100-E199)
const (
	// Store errors (E101-E109)
	ErrStoreNameEmpty    = "E101" // store name is required
	ErrStoreNoSlices     = "E102" // at least one slice required
	ErrDuplicateStore    = "E103" // two stores share a name
	ErrInvalidName       = "E104" // name is not a lower_snake identifier
	ErrDuplicateName     = "E105" // duplicate slice name
	ErrReservedStoreName = "E106" // name collides with the workflow processor

	// Slice errors (E110-E119)
	ErrUnknownKind      = "E110" // kind is not LIST, HASH or COUNTER
	ErrDisplayNotList   = "E111" // display_format on a non-LIST slice
	ErrBadDisplayFormat = "E112" // display_format has no integer verb
	ErrNegativeIDStart  = "E113" // id_start < 0
	ErrInitNotHash      = "E114" // init on a non-HASH slice
	ErrIDStartNotList   = "E115" // id_start on a non-LIST slice
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled store definitions against schema rules.
// Returns all errors found (does not fail-fast). reserved lists store names
// that are taken by the runtime, such as the workflow processor's.
func Validate(defs []state.Definition, reserved ...string) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(defs))
	taken := make(map[string]bool, len(reserved))
	for _, r := range reserved {
		taken[r] = true
	}

	for i, def := range defs {
		field := fmt.Sprintf("store[%d]", i)
		if def.Name != "" {
			field = "store." + def.Name
		}

		switch {
		case strings.TrimSpace(def.Name) == "":
			errs = append(errs, ValidationError{Field: field, Message: "store name is required", Code: ErrStoreNameEmpty})
		case !namePattern.MatchString(def.Name):
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid store name %q", def.Name), Code: ErrInvalidName})
		case seen[def.Name]:
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate store name %q", def.Name), Code: ErrDuplicateStore})
		case taken[def.Name]:
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("store name %q is reserved", def.Name), Code: ErrReservedStoreName})
		}
		seen[def.Name] = true

		if len(def.Slices) == 0 {
			errs = append(errs, ValidationError{Field: field + ".slices", Message: "at least one slice is required", Code: ErrStoreNoSlices})
		}
		sliceNames := make(map[string]bool, len(def.Slices))
		for _, sd := range def.Slices {
			errs = append(errs, validateSlice(field+".slices."+sd.Name, sd, sliceNames)...)
			sliceNames[sd.Name] = true
		}
	}
	return errs
}

func validateSlice(field string, sd state.SliceDef, seen map[string]bool) []ValidationError {
	var errs []ValidationError
	add := func(code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if !namePattern.MatchString(sd.Name) {
		add(ErrInvalidName, "invalid slice name %q", sd.Name)
	}
	if seen[sd.Name] {
		add(ErrDuplicateName, "duplicate slice name %q", sd.Name)
	}

	switch sd.Kind {
	case state.KindList, state.KindHash, state.KindCounter:
	default:
		add(ErrUnknownKind, "unknown kind %q (want LIST, HASH or COUNTER)", sd.Kind)
	}

	if sd.Kind != state.KindList {
		if sd.DisplayFormat != "" {
			add(ErrDisplayNotList, "display_format only applies to LIST")
		}
		if sd.IDStart != 0 {
			add(ErrIDStartNotList, "id_start only applies to LIST")
		}
	}
	if sd.DisplayFormat != "" && !strings.Contains(sd.DisplayFormat, "%") {
		add(ErrBadDisplayFormat, "display_format %q has no verb for the id", sd.DisplayFormat)
	}
	if sd.IDStart < 0 {
		add(ErrNegativeIDStart, "id_start must be >= 0, got %d", sd.IDStart)
	}
	if sd.Init != nil && sd.Kind != state.KindHash {
		add(ErrInitNotHash, "init only applies to HASH")
	}
	return errs
}

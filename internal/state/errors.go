package state

import (
	"errors"
	"fmt"
)

// InvariantCode categorizes invariant violations.
type InvariantCode string

const (
	// CodeHeadMismatch: batch control head differs from the Store head.
	CodeHeadMismatch InvariantCode = "HEAD_MISMATCH"

	// CodeMissingTarget: RM/SET/UPDATE against an id or path that does not exist.
	CodeMissingTarget InvariantCode = "MISSING_TARGET"

	// CodeUnknownMethod: a wire op carries a method outside the algebra.
	CodeUnknownMethod InvariantCode = "UNKNOWN_METHOD"

	// CodeUnknownSlice: a batch names a slice the Store does not define.
	CodeUnknownSlice InvariantCode = "UNKNOWN_SLICE"

	// CodeKindMismatch: an op is not valid for the slice kind.
	CodeKindMismatch InvariantCode = "KIND_MISMATCH"

	// CodeInvalidOp: an op is malformed (e.g. ADD doc carrying an _id).
	CodeInvalidOp InvariantCode = "INVALID_OP"

	// CodeStepOrder: a workflow advanced to an index at or below the last one.
	CodeStepOrder InvariantCode = "STEP_ORDER"
)

// InvariantError reports a programming bug. It is never retried.
type InvariantError struct {
	Code    InvariantCode
	Message string
	Store   string
	Slice   string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	switch {
	case e.Store != "" && e.Slice != "":
		return fmt.Sprintf("%s: %s (store=%s, slice=%s)", e.Code, e.Message, e.Store, e.Slice)
	case e.Store != "":
		return fmt.Sprintf("%s: %s (store=%s)", e.Code, e.Message, e.Store)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Invariant builds an InvariantError.
func Invariant(code InvariantCode, format string, args ...any) *InvariantError {
	return &InvariantError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsInvariant reports whether err wraps an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// InvariantCodeOf returns the code of a wrapped InvariantError, or "".
func InvariantCodeOf(err error) InvariantCode {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

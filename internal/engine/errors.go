package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while building or running a Manager.
//
// Runtime errors include:
//   - Invalid registry: duplicate slice keys, slices the Store does not
//     define, or a pass-in dependency that cannot be resolved statically
//   - Append failure: the log refused the record, nothing was applied
//
// Invariant violations are not RuntimeErrors; they are *state.InvariantError
// and halt the process.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Store names the Manager's Store.
	Store string

	// Slice names the reducer slice, when one is involved.
	Slice string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidRegistry indicates the reducer list cannot be composed.
	ErrCodeInvalidRegistry RuntimeErrorCode = "INVALID_REGISTRY"

	// ErrCodeAppendFailed indicates the log did not accept a dispatch.
	ErrCodeAppendFailed RuntimeErrorCode = "APPEND_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Store != "" && e.Slice != "" {
		return fmt.Sprintf("%s: %s (store=%s, slice=%s)", e.Code, msg, e.Store, e.Slice)
	}
	if e.Store != "" {
		return fmt.Sprintf("%s: %s (store=%s)", e.Code, msg, e.Store)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsRegistryError returns true if the error is an invalid registry error.
// Uses errors.As to handle wrapped errors.
func IsRegistryError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidRegistry
	}
	return false
}

// IsAppendError returns true if a dispatch failed at the log append.
// Uses errors.As to handle wrapped errors.
func IsAppendError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeAppendFailed
	}
	return false
}

func registryError(store, slice, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidRegistry,
		Message: fmt.Sprintf(format, args...),
		Store:   store,
		Slice:   slice,
	}
}

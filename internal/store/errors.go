package store

import "errors"

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidPath is returned when a path is empty, targets the root, or
	// contains a segment the store does not accept.
	ErrInvalidPath = errors.New("store: invalid path")

	// ErrInvalidValue is returned when a value is not valid JSON.
	ErrInvalidValue = errors.New("store: invalid value")

	// ErrInvalidFields is returned when Patch is given no fields.
	ErrInvalidFields = errors.New("store: patch requires at least one field")

	// ErrRequestFailed is returned when the store could not be reached.
	ErrRequestFailed = errors.New("store: request failed")

	// ErrUnexpectedStatus is returned when the store answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("store: unexpected response status")
)

package gateway

import "errors"

// Request outcome categories. Callers branch on them with errors.Is.
var (
	// ErrAuthDenied is returned for a missing, malformed or wrong credential.
	ErrAuthDenied = errors.New("gateway: credential rejected")

	// ErrUnavailable is returned for write routes while the kill switch is engaged.
	ErrUnavailable = errors.New("gateway: relay in maintenance")

	// ErrMalformedRequest is returned when a body fails validation.
	// No outbound call has been made.
	ErrMalformedRequest = errors.New("gateway: malformed request")

	// ErrUpstreamFailure is returned when the mandatory write or the snapshot
	// read failed.
	ErrUpstreamFailure = errors.New("gateway: upstream store failure")

	// ErrUpstreamPartial is returned when the mandatory write succeeded but
	// at least one optional write failed.
	ErrUpstreamPartial = errors.New("gateway: optional writes failed")
)

// Package gateway is the authenticated forwarding core of roomgate.
//
// Every inbound request runs one pipeline:
//
//	AvailabilityGate (write routes) → CredentialGate → PayloadValidator
//	    → PathRouter → StoreForwarder | SnapshotReader
//
// Each logical field owns a fixed sub-path of the remote tree and is never
// written at the root. Device-owned values (room status, readings, heartbeat,
// admin result) are replaced with PUT. Operator commands are merged into the
// admin sub-tree with PATCH so they never clobber the device's siblings.
//
// Partial failures follow one policy for every shape: the first write is
// mandatory and its failure aborts the request (ErrUpstreamFailure); later
// writes are optional, all of them are attempted, and failures are reported
// together (ErrUpstreamPartial).
//
// The gateway holds no per-request state between calls. The only process
// state is the kill switch, fixed at construction.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package gateway

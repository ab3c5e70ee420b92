package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// EventKind names what happened.
type EventKind string

// Event kinds.
const (
	EventUplink  EventKind = "uplink"
	EventCommand EventKind = "command"
)

// Outcome summarises a forward.
type Outcome string

// Forward outcomes.
const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Event describes a completed forward. It is emitted for every request that
// passed validation, whatever the store said.
type Event struct {
	Kind      EventKind       `json:"kind"`
	Shape     Shape           `json:"shape,omitempty"`
	RoomID    string          `json:"room_id,omitempty"`
	CommandID string          `json:"command_id,omitempty"`
	Command   json.RawMessage `json:"command,omitempty"`
	Written   []Field         `json:"written"`
	Failed    []Field         `json:"failed,omitempty"`
	Outcome   Outcome         `json:"outcome"`
	At        time.Time       `json:"at"`
}

// Notifier receives events after the response verdict is fixed.
// Errors are logged by the gateway and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// outcomeOf maps a forward error to an Outcome.
func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case isPartial(err):
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

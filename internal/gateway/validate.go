package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/roomgate/internal/store"
)

// Validation limits.
const (
	// MaxPayloadBytes bounds an inbound body.
	MaxPayloadBytes = 64 << 10

	// maxRoomIDLength bounds room_id in bytes.
	maxRoomIDLength = 128
)

// Body keys read by the validator.
const (
	keyRoomStatus  = "roomStatus"
	keyHeartbeat   = "heartbeat"
	keyAdminResult = "adminResult"
	keyRoomID      = "room_id"
	keyHeadcount   = "headcount"
	keyCommand     = "command"
)

// Shape identifies which uplink variant a body carries.
type Shape string

// Uplink shapes.
const (
	ShapeStatus  Shape = "status"
	ShapeReading Shape = "reading"
)

// Reading is a per-room occupancy sample.
type Reading struct {
	RoomID    string
	Headcount int64
}

// Uplink is a validated device payload. Optional fields are nil when absent
// or null.
type Uplink struct {
	Shape       Shape
	RoomStatus  json.RawMessage
	Reading     Reading
	Heartbeat   json.RawMessage
	AdminResult json.RawMessage
}

// Command is a validated operator instruction.
type Command struct {
	Instruction json.RawMessage
}

// ValidateUplink checks a device body.
//
// A body carrying a room_id key is reading-shape and needs a legal room_id
// and a non-negative integer headcount (zero included). Any other body is
// status-shape and needs a non-null roomStatus. heartbeat and adminResult
// are optional for both.
//
// Returns ErrMalformedRequest (wrapped with the reason) on rejection.
func ValidateUplink(body []byte) (Uplink, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return Uplink{}, err
	}

	u := Uplink{
		Heartbeat:   present(fields, keyHeartbeat),
		AdminResult: present(fields, keyAdminResult),
	}

	if _, ok := fields[keyRoomID]; ok {
		if present(fields, keyRoomStatus) != nil {
			return Uplink{}, fmt.Errorf("%w: roomStatus and room_id cannot be sent together", ErrMalformedRequest)
		}
		reading, err := validateReading(fields)
		if err != nil {
			return Uplink{}, err
		}
		u.Shape = ShapeReading
		u.Reading = reading
		return u, nil
	}

	status := present(fields, keyRoomStatus)
	if status == nil {
		return Uplink{}, fmt.Errorf("%w: roomStatus is required", ErrMalformedRequest)
	}
	u.Shape = ShapeStatus
	u.RoomStatus = status
	return u, nil
}

// ValidateCommand checks an operator body. command must be present and
// non-null; its content is opaque.
func ValidateCommand(body []byte) (Command, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return Command{}, err
	}
	instruction := present(fields, keyCommand)
	if instruction == nil {
		return Command{}, fmt.Errorf("%w: command is required", ErrMalformedRequest)
	}
	return Command{Instruction: instruction}, nil
}

func validateReading(fields map[string]json.RawMessage) (Reading, error) {
	var roomID string
	if err := json.Unmarshal(fields[keyRoomID], &roomID); err != nil {
		return Reading{}, fmt.Errorf("%w: room_id must be a string", ErrMalformedRequest)
	}
	if roomID == "" {
		return Reading{}, fmt.Errorf("%w: room_id must not be empty", ErrMalformedRequest)
	}
	if len(roomID) > maxRoomIDLength {
		return Reading{}, fmt.Errorf("%w: room_id longer than %d bytes", ErrMalformedRequest, maxRoomIDLength)
	}
	if err := store.ValidateKey(roomID); err != nil {
		return Reading{}, fmt.Errorf("%w: room_id: %v", ErrMalformedRequest, err) //nolint:errorlint // store error is detail only
	}

	raw, ok := fields[keyHeadcount]
	if !ok {
		return Reading{}, fmt.Errorf("%w: headcount is required", ErrMalformedRequest)
	}
	// null is a present value that is not an integer; 0 is a valid count.
	headcount, err := parseCount(raw)
	if err != nil {
		return Reading{}, err
	}

	return Reading{RoomID: roomID, Headcount: headcount}, nil
}

// parseCount accepts a JSON integer >= 0. 1.0, 1e2 and strings are rejected.
func parseCount(raw json.RawMessage) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: headcount must be an integer", ErrMalformedRequest)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: headcount must be an integer", ErrMalformedRequest)
	}
	count, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: headcount must be an integer", ErrMalformedRequest)
	}
	if count < 0 {
		return 0, fmt.Errorf("%w: headcount must not be negative", ErrMalformedRequest)
	}
	return count, nil
}

// decodeObject parses body as a JSON object of raw fields.
func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	if len(body) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedRequest, MaxPayloadBytes)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrMalformedRequest)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedRequest)
	}
	return fields, nil
}

// present returns the raw value for key, or nil when absent or null.
func present(fields map[string]json.RawMessage, key string) json.RawMessage {
	raw, ok := fields[key]
	if !ok || store.IsNull(raw) {
		return nil
	}
	return raw
}

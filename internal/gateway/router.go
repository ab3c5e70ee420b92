package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Fixed sub-paths of the remote tree.
const (
	PathRoomStatus  = "roomStatus"
	PathRooms       = "rooms"
	PathHeartbeat   = "admin/heartbeat"
	PathAdminResult = "admin/result"
	PathAdmin       = "admin"
)

// Field names a logical payload field. It appears in results and events.
type Field string

// Routed fields.
const (
	FieldRoomStatus  Field = "roomStatus"
	FieldReading     Field = "reading"
	FieldHeartbeat   Field = "heartbeat"
	FieldAdminResult Field = "adminResult"
	FieldCommand     Field = "command"
)

// Verb is the store write operation.
type Verb string

// Write verbs.
const (
	VerbPut   Verb = "PUT"
	VerbPatch Verb = "PATCH"
)

// Write is one planned outbound call.
type Write struct {
	Field     Field
	Path      string
	Verb      Verb
	Value     json.RawMessage            // PUT
	Fields    map[string]json.RawMessage // PATCH
	Mandatory bool
}

// IssuedCommand identifies a routed command.
type IssuedCommand struct {
	ID       string
	IssuedAt time.Time
}

// readingRecord is the value stored at rooms/{room_id}.
type readingRecord struct {
	Headcount   int64  `json:"headcount"`
	UpdatedAt   string `json:"updated_at"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// PathRouter maps validated payloads to ordered writes.
type PathRouter struct {
	now   func() time.Time
	newID func() string
}

// NewPathRouter returns a router using the wall clock and random UUIDs.
func NewPathRouter() *PathRouter {
	return &PathRouter{now: time.Now, newID: uuid.NewString}
}

// Route plans the writes for an uplink: status or reading first (mandatory),
// then heartbeat, then admin result.
func (r *PathRouter) Route(u Uplink) []Write {
	writes := make([]Write, 0, 3) //nolint:mnd // primary + two optional fields

	switch u.Shape {
	case ShapeReading:
		now := r.now().UTC()
		record, _ := json.Marshal(readingRecord{ //nolint:errcheck // plain struct cannot fail
			Headcount:   u.Reading.Headcount,
			UpdatedAt:   now.Format(time.RFC3339),
			UpdatedAtMs: now.UnixMilli(),
		})
		writes = append(writes, Write{
			Field:     FieldReading,
			Path:      PathRooms + "/" + u.Reading.RoomID,
			Verb:      VerbPut,
			Value:     record,
			Mandatory: true,
		})
	default:
		writes = append(writes, Write{
			Field:     FieldRoomStatus,
			Path:      PathRoomStatus,
			Verb:      VerbPut,
			Value:     u.RoomStatus,
			Mandatory: true,
		})
	}

	if u.Heartbeat != nil {
		writes = append(writes, Write{
			Field: FieldHeartbeat,
			Path:  PathHeartbeat,
			Verb:  VerbPut,
			Value: u.Heartbeat,
		})
	}
	if u.AdminResult != nil {
		writes = append(writes, Write{
			Field: FieldAdminResult,
			Path:  PathAdminResult,
			Verb:  VerbPut,
			Value: u.AdminResult,
		})
	}
	return writes
}

// RouteCommand plans the single merge write for a command. The instruction
// lands under admin/command next to a generated commandId and issuedAt.
func (r *PathRouter) RouteCommand(c Command) (IssuedCommand, []Write) {
	issued := IssuedCommand{ID: r.newID(), IssuedAt: r.now().UTC()}

	id, _ := json.Marshal(issued.ID)                               //nolint:errcheck // string cannot fail
	at, _ := json.Marshal(issued.IssuedAt.Format(time.RFC3339Nano)) //nolint:errcheck // string cannot fail

	return issued, []Write{{
		Field: FieldCommand,
		Path:  PathAdmin,
		Verb:  VerbPatch,
		Fields: map[string]json.RawMessage{
			"command":   c.Instruction,
			"commandId": id,
			"issuedAt":  at,
		},
		Mandatory: true,
	}}
}

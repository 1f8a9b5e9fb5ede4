package log

import (
	"strings"
	"time"
)

// Event is one captured protocol occurrence.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the process run that produced the event (UUID).
	SessionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Category  Category  `cbor:"4,keyasint"`
	LocalRole Role      `cbor:"5,keyasint"`

	// ModuleID is the module the event concerns. For a controller this is
	// the peer module.
	ModuleID  string `cbor:"6,keyasint,omitempty"`
	Topic     string `cbor:"7,keyasint,omitempty"`
	RequestID string `cbor:"8,keyasint,omitempty"`

	// One of these is set, matching Category.
	Message     *MessageEvent     `cbor:"9,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"11,keyasint,omitempty"`
}

// Direction indicates message flow relative to the local process.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1

	// DirectionNone marks events that are not messages.
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "-"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryCommand  Category = 0
	CategoryResponse Category = 1
	CategoryStatus   Category = 2
	CategoryData     Category = 3
	CategoryState    Category = 4
	CategoryError    Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryCommand:
		return "COMMAND"
	case CategoryResponse:
		return "RESPONSE"
	case CategoryStatus:
		return "STATUS"
	case CategoryData:
		return "DATA"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory returns the category for a case-insensitive name.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryCommand; c <= CategoryError; c++ {
		if strings.EqualFold(c.String(), s) {
			return c, true
		}
	}
	return 0, false
}

// Role is the local process role.
type Role uint8

const (
	RoleModule     Role = 0
	RoleController Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleModule:
		return "MODULE"
	case RoleController:
		return "CONTROLLER"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent summarizes a bus message. Only the fields relevant to the
// message kind are set.
type MessageEvent struct {
	// Command is set for commands.
	Command string `cbor:"1,keyasint,omitempty"`

	// State and Event are set for status updates.
	State string `cbor:"2,keyasint,omitempty"`
	Event string `cbor:"3,keyasint,omitempty"`

	// Status and Error are set for responses.
	Status string `cbor:"4,keyasint,omitempty"`
	Error  string `cbor:"5,keyasint,omitempty"`

	RecordingID string `cbor:"6,keyasint,omitempty"`

	// Payload is the raw JSON, truncated to MaxPayload bytes.
	Payload   []byte `cbor:"7,keyasint,omitempty"`
	Truncated bool   `cbor:"8,keyasint,omitempty"`

	// Latency is the dispatch round trip (controller responses only).
	Latency *time.Duration `cbor:"9,keyasint,omitempty"`
}

// MaxPayload bounds the raw payload kept per message.
const MaxPayload = 2048

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity names what changed state.
type StateEntity uint8

const (
	// StateEntityModule is a module's recording state machine.
	StateEntityModule StateEntity = 0

	// StateEntityConnection is the broker session.
	StateEntityConnection StateEntity = 1

	// StateEntityRegistry is the controller's view of a module.
	StateEntityRegistry StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityModule:
		return "MODULE"
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityRegistry:
		return "REGISTRY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures a protocol or capture error.
type ErrorEventData struct {
	Message string `cbor:"1,keyasint"`

	// Context describes what was being done, e.g. "decode command".
	Context string `cbor:"2,keyasint,omitempty"`
}

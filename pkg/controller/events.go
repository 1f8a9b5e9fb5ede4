package controller

import "time"

// EventKind names a fleet change.
type EventKind uint8

const (
	// EventModuleDiscovered fires on the first Status from a module.
	EventModuleDiscovered EventKind = iota

	// EventModuleDisconnected fires when a module goes quiet.
	EventModuleDisconnected

	// EventModuleReconnected fires when a disconnected module reports again.
	EventModuleReconnected

	// EventModuleError fires when a module reports a capture fault.
	EventModuleError

	// EventRecordingComplete fires when a module announces a finished
	// recording on its data topic.
	EventRecordingComplete
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventModuleDiscovered:
		return "discovered"
	case EventModuleDisconnected:
		return "disconnected"
	case EventModuleReconnected:
		return "reconnected"
	case EventModuleError:
		return "error"
	case EventRecordingComplete:
		return "recording_complete"
	default:
		return "unknown"
	}
}

// Event describes a change observed by the controller.
type Event struct {
	Kind     EventKind
	ModuleID string
	Time     time.Time

	// Error is set for EventModuleError.
	Error string

	// Recording is set for EventRecordingComplete.
	Recording *Recording
}

// EventHandler receives controller events. Handlers run on the controller
// loop and must not block.
type EventHandler func(Event)

package wire

// CommandType identifies the operation a Command requests.
type CommandType string

const (
	// CommandStart begins a recording.
	CommandStart CommandType = "start"

	// CommandStop ends the active recording. Stopping an idle module is a no-op.
	CommandStop CommandType = "stop"

	// CommandStatus requests the module's current snapshot.
	CommandStatus CommandType = "status"

	// CommandConfig applies audio configuration overrides.
	CommandConfig CommandType = "config"

	// CommandShutdown stops any recording and terminates the module process.
	CommandShutdown CommandType = "shutdown"
)

// String returns the command name.
func (c CommandType) String() string {
	if c == "" {
		return "UNKNOWN"
	}
	return string(c)
}

// IsValid returns true if the command type is defined.
func (c CommandType) IsValid() bool {
	switch c {
	case CommandStart, CommandStop, CommandStatus, CommandConfig, CommandShutdown:
		return true
	}
	return false
}

// State is the lifecycle state of a recording module.
type State string

const (
	// StateIdle means the module is ready to record.
	StateIdle State = "idle"

	// StateRecording means a capture is running.
	StateRecording State = "recording"

	// StateError means the capture device failed. Modules leave this state
	// on their own once the fault has been reported.
	StateError State = "error"

	// StateDisconnected is assigned by the controller's registry when a
	// module's heartbeats go stale. A module never reports it about itself.
	StateDisconnected State = "disconnected"
)

// String returns the state name.
func (s State) String() string {
	if s == "" {
		return "UNKNOWN"
	}
	return string(s)
}

// IsValid returns true if the state is defined.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateRecording, StateError, StateDisconnected:
		return true
	}
	return false
}

// ResponseStatus is the result class of a Response.
type ResponseStatus string

const (
	ResponseOK    ResponseStatus = "ok"
	ResponseError ResponseStatus = "error"
)

// IsValid returns true if the response status is defined.
func (s ResponseStatus) IsValid() bool {
	return s == ResponseOK || s == ResponseError
}

// StatusEvent describes why a Status was published.
type StatusEvent string

const (
	EventHeartbeat          StatusEvent = "heartbeat"
	EventStateChange        StatusEvent = "state_change"
	EventRecordingStarted   StatusEvent = "recording_started"
	EventRecordingCompleted StatusEvent = "recording_completed"
	EventError              StatusEvent = "error"
)

// DataEventType names the payload kind on the data topic.
type DataEventType string

const (
	// DataRecordingComplete announces a finalized recording artifact.
	DataRecordingComplete DataEventType = "recording_complete"
)

package wire

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Rejection reasons carried in Response.Error.
const (
	ReasonAlreadyRecording  = "already recording"
	ReasonConfigWhileActive = "config change while recording"
	ReasonInvalidConfig     = "invalid config"
	ReasonUnknownCommand    = "unknown command"
	ReasonInvalidDuration   = "invalid duration"
	ReasonCaptureFailed     = "capture failed"
)

// Message validation errors.
var (
	ErrMissingRequestID = errors.New("missing request_id")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidDuration  = errors.New(ReasonInvalidDuration)
	ErrMissingModuleID  = errors.New("missing module_id")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidStatus    = errors.New("invalid response status")
	ErrInvalidRecording = errors.New("invalid recording_id")
)

// MaxRecordingDuration bounds the duration a start command may request.
const MaxRecordingDuration = 24 * time.Hour

// Command is a request from the controller to a single module.
type Command struct {
	// Command names the operation.
	Command CommandType `json:"command"`

	// RequestID correlates the Response. Required.
	RequestID string `json:"request_id"`

	// Duration is the recording length in seconds (start only). Zero or
	// absent records until stopped.
	Duration *float64 `json:"duration,omitempty"`

	// RecordingID names the recording (start only). The module generates one
	// when absent.
	RecordingID string `json:"recording_id,omitempty"`

	// Config holds overrides (start and config).
	Config *ConfigOverride `json:"config,omitempty"`

	// Save asks the module to persist the resulting configuration (config only).
	Save bool `json:"save,omitempty"`
}

// Validate checks the command envelope.
func (c *Command) Validate() error {
	if c.RequestID == "" {
		return ErrMissingRequestID
	}
	if !c.Command.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, string(c.Command))
	}
	if c.RecordingID != "" && !ValidRecordingID(c.RecordingID) {
		return fmt.Errorf("%w: %q", ErrInvalidRecording, c.RecordingID)
	}
	if c.Duration != nil {
		d := *c.Duration
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: %v", ErrInvalidDuration, d)
		}
		// Checked in seconds; larger values overflow time.Duration.
		if d > MaxRecordingDuration.Seconds() {
			return fmt.Errorf("%w: %v exceeds %s", ErrInvalidDuration, d, MaxRecordingDuration)
		}
	}
	return nil
}

// ValidRecordingID reports whether id can be embedded in a file name.
func ValidRecordingID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`+"\x00")
}

// RecordingDuration returns the requested duration, if any. It assumes the
// command passed Validate.
func (c *Command) RecordingDuration() (time.Duration, bool) {
	if c.Duration == nil || *c.Duration == 0 {
		return 0, false
	}
	return time.Duration(*c.Duration * float64(time.Second)), true
}

// WithDuration sets the duration field from a time.Duration.
// A non-positive duration clears it.
func (c *Command) WithDuration(d time.Duration) *Command {
	if d <= 0 {
		c.Duration = nil
		return c
	}
	s := d.Seconds()
	c.Duration = &s
	return c
}

// Response is a module's single answer to a Command.
type Response struct {
	RequestID string         `json:"request_id"`
	ModuleID  string         `json:"module_id"`
	Status    ResponseStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
	Result    *Result        `json:"result,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// IsSuccess returns true if the module accepted the command.
func (r *Response) IsSuccess() bool {
	return r.Status == ResponseOK
}

// Validate checks the response envelope.
func (r *Response) Validate() error {
	if r.RequestID == "" {
		return ErrMissingRequestID
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(r.Status))
	}
	return nil
}

// Result is the optional payload of a successful Response.
type Result struct {
	State       State        `json:"state,omitempty"`
	RecordingID string       `json:"recording_id,omitempty"`
	FilePath    string       `json:"file_path,omitempty"`
	Duration    float64      `json:"duration,omitempty"`
	Config      *AudioConfig `json:"config,omitempty"`
}

// Status is a module's self-report, published on transitions and as a
// periodic heartbeat.
type Status struct {
	ModuleID    string       `json:"module_id"`
	State       State        `json:"state"`
	Event       StatusEvent  `json:"event,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Version     string       `json:"version,omitempty"`
	RecordingID string       `json:"recording_id,omitempty"`
	Config      *AudioConfig `json:"config,omitempty"`
	Error       string       `json:"error,omitempty"`

	// FilePath and Duration are set on recording_completed.
	FilePath string  `json:"file_path,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Validate checks the status envelope.
func (s *Status) Validate() error {
	if s.ModuleID == "" {
		return ErrMissingModuleID
	}
	if !s.State.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, string(s.State))
	}
	return nil
}

// DataEvent is published on the data topic when a recording artifact is
// ready.
type DataEvent struct {
	Event       DataEventType `json:"event"`
	ModuleID    string        `json:"module_id"`
	RecordingID string        `json:"recording_id"`
	Filename    string        `json:"filename"`
	Duration    float64       `json:"duration,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

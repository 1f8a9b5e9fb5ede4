package log

import (
	"time"

	"github.com/google/uuid"

	"github.com/rslogger/rsaudio/pkg/wire"
)

// Logger receives protocol events. Implementations must be safe for
// concurrent use and should not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. Usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

// Recorder builds events for one process and hands them to a Logger.
type Recorder struct {
	logger   Logger
	session  string
	role     Role
	moduleID string
	now      func() time.Time
}

// NewRecorder returns a Recorder with a fresh session id. moduleID is the
// default module stamped on events; controllers pass "".
func NewRecorder(logger Logger, role Role, moduleID string) *Recorder {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Recorder{
		logger:   logger,
		session:  uuid.NewString(),
		role:     role,
		moduleID: moduleID,
		now:      time.Now,
	}
}

// SessionID returns the id stamped on every event.
func (r *Recorder) SessionID() string {
	return r.session
}

func (r *Recorder) event(cat Category, dir Direction, moduleID, topic, requestID string) Event {
	if moduleID == "" {
		moduleID = r.moduleID
	}
	return Event{
		Timestamp: r.now(),
		SessionID: r.session,
		Direction: dir,
		Category:  cat,
		LocalRole: r.role,
		ModuleID:  moduleID,
		Topic:     topic,
		RequestID: requestID,
	}
}

func payloadOf(raw []byte) ([]byte, bool) {
	if len(raw) <= MaxPayload {
		return raw, false
	}
	return raw[:MaxPayload], true
}

// Command records a command.
func (r *Recorder) Command(dir Direction, moduleID, topic string, cmd *wire.Command, raw []byte) {
	ev := r.event(CategoryCommand, dir, moduleID, topic, cmd.RequestID)
	p, trunc := payloadOf(raw)
	ev.Message = &MessageEvent{
		Command:     string(cmd.Command),
		RecordingID: cmd.RecordingID,
		Payload:     p,
		Truncated:   trunc,
	}
	r.logger.Log(ev)
}

// Response records a response. latency is only known to the controller.
func (r *Recorder) Response(dir Direction, moduleID, topic string, resp *wire.Response, raw []byte, latency *time.Duration) {
	if moduleID == "" {
		moduleID = resp.ModuleID
	}
	ev := r.event(CategoryResponse, dir, moduleID, topic, resp.RequestID)
	p, trunc := payloadOf(raw)
	ev.Message = &MessageEvent{
		Status:    string(resp.Status),
		Error:     resp.Error,
		Payload:   p,
		Truncated: trunc,
		Latency:   latency,
	}
	if resp.Result != nil {
		ev.Message.RecordingID = resp.Result.RecordingID
	}
	r.logger.Log(ev)
}

// Status records a status update.
func (r *Recorder) Status(dir Direction, topic string, st *wire.Status, raw []byte) {
	ev := r.event(CategoryStatus, dir, st.ModuleID, topic, "")
	p, trunc := payloadOf(raw)
	ev.Message = &MessageEvent{
		State:       string(st.State),
		Event:       string(st.Event),
		Error:       st.Error,
		RecordingID: st.RecordingID,
		Payload:     p,
		Truncated:   trunc,
	}
	r.logger.Log(ev)
}

// Data records a data topic event.
func (r *Recorder) Data(dir Direction, topic string, de *wire.DataEvent, raw []byte) {
	ev := r.event(CategoryData, dir, de.ModuleID, topic, "")
	p, trunc := payloadOf(raw)
	ev.Message = &MessageEvent{
		Event:       string(de.Event),
		RecordingID: de.RecordingID,
		Payload:     p,
		Truncated:   trunc,
	}
	r.logger.Log(ev)
}

// StateChange records a lifecycle transition.
func (r *Recorder) StateChange(entity StateEntity, moduleID, oldState, newState, reason string) {
	ev := r.event(CategoryState, DirectionNone, moduleID, "", "")
	ev.StateChange = &StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	r.logger.Log(ev)
}

// Error records a protocol or capture error.
func (r *Recorder) Error(moduleID, topic, requestID, context string, err error) {
	ev := r.event(CategoryError, DirectionNone, moduleID, topic, requestID)
	ev.Error = &ErrorEventData{Message: err.Error(), Context: context}
	r.logger.Log(ev)
}

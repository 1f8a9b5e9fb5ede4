package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks payloads that cannot be interpreted at all.
var ErrMalformed = errors.New("malformed message")

// ProtocolError reports a payload that violates the message format.
//
// RequestID is set when the payload was well-formed enough to carry one, in
// which case the receiver can still answer with an error Response. Without a
// RequestID the message must be dropped.
type ProtocolError struct {
	RequestID string
	Err       error
}

func (e *ProtocolError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("protocol error (request %s): %v", e.RequestID, e.Err)
	}
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Answerable returns true if the error still allows an error Response.
func (e *ProtocolError) Answerable() bool {
	return e.RequestID != ""
}

// Marshal encodes a message record to JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON into a message record.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// EncodeCommand validates and encodes a command.
func EncodeCommand(cmd *Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	return Marshal(cmd)
}

// DecodeCommand decodes and validates a command payload. Failures are
// returned as *ProtocolError.
func DecodeCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := Unmarshal(data, &cmd); err != nil {
		// A mistyped field still leaves the request id readable.
		var envelope struct {
			Command   CommandType `json:"command"`
			RequestID string      `json:"request_id"`
		}
		if Unmarshal(data, &envelope) != nil {
			return nil, &ProtocolError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
		}
		cmd = Command{Command: envelope.Command, RequestID: envelope.RequestID}
		return &cmd, &ProtocolError{RequestID: envelope.RequestID, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := cmd.Validate(); err != nil {
		return &cmd, &ProtocolError{RequestID: cmd.RequestID, Err: err}
	}
	return &cmd, nil
}

// EncodeResponse validates and encodes a response.
func EncodeResponse(resp *Response) ([]byte, error) {
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return Marshal(resp)
}

// DecodeResponse decodes and validates a response payload.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := resp.Validate(); err != nil {
		return nil, &ProtocolError{RequestID: resp.RequestID, Err: err}
	}
	return &resp, nil
}

// EncodeStatus validates and encodes a status update.
func EncodeStatus(st *Status) ([]byte, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid status: %w", err)
	}
	return Marshal(st)
}

// DecodeStatus decodes and validates a status payload.
func DecodeStatus(data []byte) (*Status, error) {
	var st Status
	if err := Unmarshal(data, &st); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := st.Validate(); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	return &st, nil
}

// DecodeDataEvent decodes a data topic payload.
func DecodeDataEvent(data []byte) (*DataEvent, error) {
	var ev DataEvent
	if err := Unmarshal(data, &ev); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if ev.Event == "" {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: missing event", ErrMalformed)}
	}
	return &ev, nil
}

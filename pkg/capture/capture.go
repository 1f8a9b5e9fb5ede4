// Package capture defines the audio capture collaborator used by a
// recording module, with an ffmpeg-backed implementation and a simulator.
//
// The module's state machine only talks to the Capture interface. Faults
// that happen while a capture is running (device unplugged, encoder crash)
// are reported asynchronously on the Faults channel; the capture is
// considered stopped once a fault has been sent.
package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rslogger/rsaudio/pkg/wire"
)

// Capture errors.
var (
	ErrAlreadyRunning = errors.New("capture already running")
	ErrNotRunning     = errors.New("capture not running")
	ErrUnavailable    = errors.New("capture backend unavailable")
)

// RecordingIDLayout formats generated recording ids (YYYYMMDD_HHMMSS).
const RecordingIDLayout = "20060102_150405"

// Request describes one capture.
type Request struct {
	RecordingID string
	Path        string
	Config      wire.AudioConfig
}

// Artifact describes a finished capture.
type Artifact struct {
	RecordingID string
	Path        string
	StartedAt   time.Time
	Duration    time.Duration
}

// Capture records audio into a file.
type Capture interface {
	// Start begins capturing. It returns once the device is open.
	Start(ctx context.Context, req Request) error

	// Stop ends the running capture and returns the finalized artifact.
	Stop(ctx context.Context) (Artifact, error)

	// Faults delivers asynchronous failures of a running capture.
	Faults() <-chan error
}

// Fault is an error delivered on a Faults channel.
type Fault struct {
	// RecordingID names the capture that failed. It is empty when the
	// device failed outside any capture.
	RecordingID string
	Err         error
}

func (f *Fault) Error() string {
	if f.RecordingID == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("recording %s: %v", f.RecordingID, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// FaultRecording returns the recording id a fault belongs to, or "".
func FaultRecording(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.RecordingID
	}
	return ""
}

// NewRecordingID returns a recording id for t.
func NewRecordingID(t time.Time) string {
	return t.Format(RecordingIDLayout)
}

// ArtifactPath returns where a module stores a recording:
// {dir}/recording_{recording_id}_{module_id}.wav
func ArtifactPath(dir, recordingID, moduleID string) string {
	return filepath.Join(dir, fmt.Sprintf("recording_%s_%s.wav", recordingID, moduleID))
}

package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Simulator is a Capture that records nothing. It optionally creates an
// empty placeholder file per recording and supports fault injection.
type Simulator struct {
	mu      sync.Mutex
	running bool
	req     Request
	started time.Time
	faults  chan error
	starts  int

	// WriteFiles creates an empty file at the artifact path on Stop.
	WriteFiles bool

	// StartErr, when set, fails every Start.
	StartErr error

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewSimulator returns an idle simulator.
func NewSimulator() *Simulator {
	return &Simulator{faults: make(chan error, 1), Now: time.Now}
}

// Start begins a simulated capture.
func (s *Simulator) Start(_ context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StartErr != nil {
		return s.StartErr
	}
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.req = req
	s.started = s.Now()
	s.starts++
	return nil
}

// Stop ends the simulated capture.
func (s *Simulator) Stop(_ context.Context) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return Artifact{}, ErrNotRunning
	}
	s.running = false

	art := Artifact{
		RecordingID: s.req.RecordingID,
		Path:        s.req.Path,
		StartedAt:   s.started,
		Duration:    s.Now().Sub(s.started),
	}
	if s.WriteFiles && art.Path != "" {
		if err := os.MkdirAll(filepath.Dir(art.Path), 0755); err != nil {
			return art, err
		}
		if err := os.WriteFile(art.Path, nil, 0644); err != nil {
			return art, err
		}
	}
	return art, nil
}

// Faults returns the fault channel.
func (s *Simulator) Faults() <-chan error {
	return s.faults
}

// Fail aborts the running capture with err, as a device failure would.
func (s *Simulator) Fail(err error) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	rid := s.req.RecordingID
	s.mu.Unlock()

	s.faults <- &Fault{RecordingID: rid, Err: fmt.Errorf("simulated device failure: %w", err)}
	return nil
}

// DeviceLost reports a device failure while no capture is running.
func (s *Simulator) DeviceLost(err error) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.mu.Unlock()

	s.faults <- &Fault{Err: fmt.Errorf("simulated device failure: %w", err)}
	return nil
}

// Running reports whether a capture is in progress.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Starts returns how many captures were started.
func (s *Simulator) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// LastRequest returns the most recent Start request.
func (s *Simulator) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req
}

var _ Capture = (*Simulator)(nil)

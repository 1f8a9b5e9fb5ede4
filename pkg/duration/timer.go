package duration

import (
	"errors"
	"sync"
	"time"
)

// Timer errors.
var (
	ErrTimerNotFound   = errors.New("timer not found")
	ErrInvalidDuration = errors.New("invalid duration")
)

// MaxDuration bounds a single timed recording.
const MaxDuration = 24 * time.Hour

// Timer describes an armed deadline.
type Timer struct {
	RecordingID string
	StartTime   time.Time
	Duration    time.Duration

	timer *time.Timer
}

// ExpiresAt returns when the timer fires.
func (t *Timer) ExpiresAt() time.Time {
	return t.StartTime.Add(t.Duration)
}

// RemainingTime returns the time until expiry, never negative.
func (t *Timer) RemainingTime() time.Duration {
	return max(t.Duration-time.Since(t.StartTime), 0)
}

// IsExpired returns true once the deadline has passed.
func (t *Timer) IsExpired() bool {
	return time.Since(t.StartTime) >= t.Duration
}

// Manager tracks recording deadlines.
type Manager struct {
	mu       sync.Mutex
	timers   map[string]*Timer
	onExpiry func(recordingID string)
}

// NewManager returns a manager that calls onExpiry when a timer fires.
func NewManager(onExpiry func(recordingID string)) *Manager {
	return &Manager{
		timers:   make(map[string]*Timer),
		onExpiry: onExpiry,
	}
}

// Set arms (or re-arms) the deadline for recordingID.
func (m *Manager) Set(recordingID string, d time.Duration) error {
	if d <= 0 || d > MaxDuration {
		return ErrInvalidDuration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.timers[recordingID]; ok {
		existing.timer.Stop()
	}

	t := &Timer{
		RecordingID: recordingID,
		StartTime:   time.Now(),
		Duration:    d,
	}
	t.timer = time.AfterFunc(d, func() { m.expire(t) })
	m.timers[recordingID] = t
	return nil
}

// Cancel disarms the deadline without running the callback.
func (m *Manager) Cancel(recordingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[recordingID]
	if !ok {
		return ErrTimerNotFound
	}
	t.timer.Stop()
	delete(m.timers, recordingID)
	return nil
}

// CancelAll disarms every deadline.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.timers {
		t.timer.Stop()
		delete(m.timers, id)
	}
}

// Get returns a copy of the timer for recordingID, or nil.
func (m *Manager) Get(recordingID string) *Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[recordingID]
	if !ok {
		return nil
	}
	return &Timer{RecordingID: t.RecordingID, StartTime: t.StartTime, Duration: t.Duration}
}

// Count returns the number of armed timers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manager) expire(t *Timer) {
	m.mu.Lock()
	// A re-armed timer replaces t in the map; only the current one fires.
	if m.timers[t.RecordingID] != t {
		m.mu.Unlock()
		return
	}
	delete(m.timers, t.RecordingID)
	cb := m.onExpiry
	m.mu.Unlock()

	if cb != nil {
		cb(t.RecordingID)
	}
}

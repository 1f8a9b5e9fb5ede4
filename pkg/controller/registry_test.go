package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rslogger/rsaudio/pkg/wire"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func status(id string, state wire.State, ts time.Time) *wire.Status {
	return &wire.Status{ModuleID: id, State: state, Event: wire.EventHeartbeat, Timestamp: ts, Version: "1.0"}
}

func TestRegistry_ObserveRegistersImplicitly(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(90*time.Second, clock.Now)

	change, err := r.Observe(status("a", wire.StateIdle, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, ChangeDiscovered, change)

	change, err = r.Observe(status("a", wire.StateRecording, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, ChangeNone, change)

	m, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, wire.StateRecording, m.State)
	assert.True(t, m.Online())
	assert.Equal(t, clock.Now(), m.LastHeartbeat)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_StaleAndRestore(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(90*time.Second, clock.Now)

	_, err := r.Observe(status("a", wire.StateRecording, clock.Now()))
	require.NoError(t, err)
	_, err = r.Observe(status("b", wire.StateIdle, clock.Now()))
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	_, err = r.Observe(status("b", wire.StateIdle, clock.Now()))
	require.NoError(t, err)
	assert.Empty(t, r.Sweep())

	clock.Advance(31 * time.Second)

	// Queries see staleness before the sweep runs.
	m, _ := r.Get("a")
	assert.Equal(t, wire.StateDisconnected, m.State)
	assert.Equal(t, wire.StateRecording, m.ReportedState)
	assert.Equal(t, []string{"b"}, r.Live())

	assert.Equal(t, []string{"a"}, r.Sweep())
	assert.Empty(t, r.Sweep(), "already marked")

	change, err := r.Observe(status("a", wire.StateIdle, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, ChangeReconnected, change)

	m, _ = r.Get("a")
	assert.Equal(t, wire.StateIdle, m.State)
	assert.Equal(t, []string{"a", "b"}, r.Live())
}

func TestRegistry_RecoveredBeforeSweep(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(90*time.Second, clock.Now)

	_, err := r.Observe(status("a", wire.StateIdle, clock.Now()))
	require.NoError(t, err)

	clock.Advance(91 * time.Second)
	m, _ := r.Get("a")
	require.Equal(t, wire.StateDisconnected, m.State)

	change, err := r.Observe(status("a", wire.StateIdle, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, ChangeRecovered, change)
	assert.Empty(t, r.Sweep())

	change, err = r.Observe(status("a", wire.StateIdle, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, ChangeNone, change)
}

func TestRegistry_OutOfOrderStatus(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(time.Minute, clock.Now)
	t0 := clock.Now()

	_, err := r.Observe(status("a", wire.StateRecording, t0.Add(time.Second)))
	require.NoError(t, err)
	_, err = r.Observe(status("a", wire.StateIdle, t0))
	require.NoError(t, err)

	m, _ := r.Get("a")
	assert.Equal(t, wire.StateRecording, m.State)
}

func TestRegistry_IncompatibleVersion(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	st := status("a", wire.StateIdle, time.Now())
	st.Version = "2.0"
	_, err := r.Observe(st)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
	assert.Equal(t, 0, r.Len())

	st.Version = ""
	_, err = r.Observe(st)
	assert.NoError(t, err)
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	st := status("a", wire.StateIdle, time.Now())
	cfg := wire.DefaultAudioConfig()
	st.Config = &cfg
	_, err := r.Observe(st)
	require.NoError(t, err)

	snap := r.Snapshot()
	snap["a"].Config.SampleRate = 1
	delete(snap, "a")

	m, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, wire.DefaultSampleRate, m.Config.SampleRate)
}

func TestRegistry_Recordings(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(time.Minute, clock.Now)

	st := status("a", wire.StateRecording, clock.Now())
	st.RecordingID = "rec1"
	_, err := r.Observe(st)
	require.NoError(t, err)
	m, _ := r.Get("a")
	assert.Equal(t, "rec1", m.RecordingID)

	done := status("a", wire.StateIdle, clock.Now().Add(time.Second))
	done.Event = wire.EventRecordingCompleted
	done.RecordingID = "rec1"
	done.FilePath = "/data/recording_rec1_a.wav"
	done.Duration = 2.5
	_, err = r.Observe(done)
	require.NoError(t, err)

	m, _ = r.Get("a")
	assert.Empty(t, m.RecordingID)
	require.NotNil(t, m.LastRecording)
	assert.Equal(t, "rec1", m.LastRecording.RecordingID)
	assert.Equal(t, 2500*time.Millisecond, m.LastRecording.Duration)

	r.RecordCompletion(&wire.DataEvent{ModuleID: "a", RecordingID: "rec1", Filename: "recording_rec1_a.wav", Duration: 2.5})
	m, _ = r.Get("a")
	assert.Equal(t, "recording_rec1_a.wav", m.LastRecording.Filename)

	// Unknown modules are not registered by data events.
	r.RecordCompletion(&wire.DataEvent{ModuleID: "zzz"})
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Forget("a"))
	assert.False(t, r.Forget("a"))
}

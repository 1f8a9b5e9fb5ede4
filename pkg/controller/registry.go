package controller

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rslogger/rsaudio/pkg/version"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// ErrIncompatibleVersion is returned by Observe for a module speaking another
// major protocol version.
var ErrIncompatibleVersion = errors.New("incompatible protocol version")

// Recording describes a module's last completed recording.
type Recording struct {
	RecordingID string
	Filename    string
	Duration    time.Duration
	CompletedAt time.Time
}

// ModuleStatus is the controller's view of one module.
type ModuleStatus struct {
	ModuleID string

	// State is the effective state: the reported state, or disconnected once
	// the module has gone quiet.
	State wire.State

	// ReportedState is the state from the module's last Status.
	ReportedState wire.State

	RecordingID   string
	Config        *wire.AudioConfig
	Version       string
	Error         string
	LastHeartbeat time.Time
	FirstSeen     time.Time
	LastRecording *Recording
}

// Online returns true unless the module is disconnected.
func (m ModuleStatus) Online() bool {
	return m.State != wire.StateDisconnected
}

// Change is what an observed Status meant for the registry.
type Change uint8

const (
	// ChangeNone refreshed a known, live module.
	ChangeNone Change = iota

	// ChangeDiscovered registered a new module.
	ChangeDiscovered

	// ChangeReconnected revived a module marked disconnected.
	ChangeReconnected

	// ChangeRecovered revived a module whose silence had exceeded the
	// threshold before any sweep marked it disconnected.
	ChangeRecovered
)

type entry struct {
	status     ModuleStatus
	reportedAt time.Time
	stale      bool
}

// Registry tracks modules by id. It is mutated by the controller loop and
// read by operator calls; readers always receive copies.
type Registry struct {
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	modules map[string]*entry
}

// NewRegistry creates a registry that treats a module as disconnected after
// staleAfter without a Status.
func NewRegistry(staleAfter time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		staleAfter: staleAfter,
		now:        now,
		modules:    make(map[string]*entry),
	}
}

// Observe records a Status. The module's heartbeat is refreshed with the
// local receive time. A Status timestamped before the last applied one
// refreshes liveness but does not roll the state back.
func (r *Registry) Observe(st *wire.Status) (Change, error) {
	if !version.Accepts(st.Version) {
		return ChangeNone, fmt.Errorf("%w: module %s speaks %s", ErrIncompatibleVersion, st.ModuleID, st.Version)
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.modules[st.ModuleID]
	change := ChangeNone
	switch {
	case !ok:
		e = &entry{status: ModuleStatus{ModuleID: st.ModuleID, FirstSeen: now}}
		r.modules[st.ModuleID] = e
		change = ChangeDiscovered
	case e.stale:
		change = ChangeReconnected
	case r.expired(e, now):
		change = ChangeRecovered
	}
	e.stale = false
	e.status.LastHeartbeat = now

	if ok && st.Timestamp.Before(e.reportedAt) {
		return change, nil
	}
	e.reportedAt = st.Timestamp
	e.status.ReportedState = st.State
	e.status.RecordingID = st.RecordingID
	e.status.Version = st.Version
	e.status.Error = st.Error
	if st.Config != nil {
		cfg := *st.Config
		e.status.Config = &cfg
	}
	if st.Event == wire.EventRecordingCompleted && st.RecordingID != "" {
		e.status.LastRecording = &Recording{
			RecordingID: st.RecordingID,
			Filename:    st.FilePath,
			Duration:    time.Duration(st.Duration * float64(time.Second)),
			CompletedAt: st.Timestamp,
		}
		e.status.RecordingID = ""
	}
	return change, nil
}

// RecordCompletion notes a recording_complete data event.
func (r *Registry) RecordCompletion(de *wire.DataEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.modules[de.ModuleID]
	if !ok {
		return
	}
	e.status.LastRecording = &Recording{
		RecordingID: de.RecordingID,
		Filename:    de.Filename,
		Duration:    time.Duration(de.Duration * float64(time.Second)),
		CompletedAt: de.Timestamp,
	}
}

// Sweep marks modules silent for longer than the threshold as disconnected
// and returns the ids that changed.
func (r *Registry) Sweep() []string {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var lost []string
	for id, e := range r.modules {
		if !e.stale && r.expired(e, now) {
			e.stale = true
			lost = append(lost, id)
		}
	}
	slices.Sort(lost)
	return lost
}

func (r *Registry) expired(e *entry, now time.Time) bool {
	return r.staleAfter > 0 && now.Sub(e.status.LastHeartbeat) > r.staleAfter
}

func (r *Registry) view(e *entry, now time.Time) ModuleStatus {
	s := e.status
	if s.Config != nil {
		cfg := *s.Config
		s.Config = &cfg
	}
	if s.LastRecording != nil {
		rec := *s.LastRecording
		s.LastRecording = &rec
	}
	s.State = s.ReportedState
	if e.stale || r.expired(e, now) {
		s.State = wire.StateDisconnected
	}
	return s
}

// Get returns a module's status.
func (r *Registry) Get(id string) (ModuleStatus, bool) {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.modules[id]
	if !ok {
		return ModuleStatus{}, false
	}
	return r.view(e, now), true
}

// Snapshot returns a copy of every module's status.
func (r *Registry) Snapshot() map[string]ModuleStatus {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ModuleStatus, len(r.modules))
	for id, e := range r.modules {
		out[id] = r.view(e, now)
	}
	return out
}

// Live returns the sorted ids of modules that are not disconnected.
func (r *Registry) Live() []string {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, e := range r.modules {
		if !e.stale && !r.expired(e, now) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Forget removes a module.
func (r *Registry) Forget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.modules[id]
	delete(r.modules, id)
	return ok
}

// Len returns the number of known modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

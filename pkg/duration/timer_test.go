package duration

import (
	"sync"
	"testing"
	"time"
)

type expiries struct {
	mu  sync.Mutex
	ids []string
}

func (e *expiries) record(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
}

func (e *expiries) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

func TestTimer(t *testing.T) {
	timer := &Timer{RecordingID: "r", StartTime: time.Now(), Duration: time.Minute}
	if timer.IsExpired() {
		t.Error("IsExpired() = true for fresh timer")
	}
	if r := timer.RemainingTime(); r < 59*time.Second || r > time.Minute {
		t.Errorf("RemainingTime() = %v, want ~60s", r)
	}

	old := &Timer{StartTime: time.Now().Add(-2 * time.Second), Duration: time.Second}
	if !old.IsExpired() || old.RemainingTime() != 0 {
		t.Errorf("expired timer: IsExpired() = %v, RemainingTime() = %v", old.IsExpired(), old.RemainingTime())
	}
}

func TestManager_Expiry(t *testing.T) {
	var got expiries
	m := NewManager(got.record)

	if err := m.Set("take1", 30*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}

	time.Sleep(100 * time.Millisecond)

	if ids := got.get(); len(ids) != 1 || ids[0] != "take1" {
		t.Errorf("expired = %v, want [take1]", ids)
	}
	if m.Count() != 0 {
		t.Errorf("Count() after expiry = %d, want 0", m.Count())
	}
}

func TestManager_Cancel(t *testing.T) {
	var got expiries
	m := NewManager(got.record)

	if err := m.Set("take1", 30*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Cancel("take1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := m.Cancel("take1"); err != ErrTimerNotFound {
		t.Errorf("second Cancel() error = %v, want ErrTimerNotFound", err)
	}

	time.Sleep(60 * time.Millisecond)
	if ids := got.get(); len(ids) != 0 {
		t.Errorf("expired = %v, want none", ids)
	}
}

func TestManager_Replace(t *testing.T) {
	var got expiries
	m := NewManager(got.record)

	_ = m.Set("take1", 20*time.Millisecond)
	_ = m.Set("take1", 80*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	if ids := got.get(); len(ids) != 0 {
		t.Fatalf("replaced timer fired: %v", ids)
	}
	if timer := m.Get("take1"); timer == nil || timer.Duration != 80*time.Millisecond {
		t.Errorf("Get() = %+v, want 80ms timer", timer)
	}

	time.Sleep(80 * time.Millisecond)
	if ids := got.get(); len(ids) != 1 {
		t.Errorf("expired = %v, want exactly one", ids)
	}
}

func TestManager_InvalidDuration(t *testing.T) {
	m := NewManager(nil)
	for _, d := range []time.Duration{0, -time.Second, MaxDuration + time.Second} {
		if err := m.Set("r", d); err != ErrInvalidDuration {
			t.Errorf("Set(%v) error = %v, want ErrInvalidDuration", d, err)
		}
	}
}

func TestManager_CancelAll(t *testing.T) {
	var got expiries
	m := NewManager(got.record)
	_ = m.Set("a", 20*time.Millisecond)
	_ = m.Set("b", 20*time.Millisecond)
	m.CancelAll()

	time.Sleep(50 * time.Millisecond)
	if m.Count() != 0 || len(got.get()) != 0 {
		t.Errorf("Count() = %d, expired = %v after CancelAll", m.Count(), got.get())
	}
	if m.Get("a") != nil {
		t.Error("Get() after CancelAll should be nil")
	}
}

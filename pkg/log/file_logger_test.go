package log

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "capture.rlog")

	fl, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		fl.Log(e)
	}
	require.NoError(t, fl.Close())
	assert.Zero(t, fl.Errors())
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestFileLogger_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	events := []Event{
		{Timestamp: ts, SessionID: "s1", ModuleID: "mic-1", Category: CategoryCommand, Direction: DirectionIn,
			RequestID: "r1", Message: &MessageEvent{Command: "start"}},
		{Timestamp: ts.Add(time.Second), SessionID: "s1", ModuleID: "mic-1", Category: CategoryResponse, Direction: DirectionOut,
			RequestID: "r1", Message: &MessageEvent{Status: "ok"}},
	}
	path := writeLog(t, events)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Equal(ts), "nanosecond timestamp preserved")
	assert.Equal(t, "start", got[0].Message.Command)
	assert.Equal(t, "ok", got[1].Message.Status)
}

func TestFileLogger_LogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.rlog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)
	require.NoError(t, fl.Close())
	require.NoError(t, fl.Close())
	fl.Log(Event{})

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, readAll(t, r))
}

func TestReader_Filter(t *testing.T) {
	base := time.Now()
	events := []Event{
		{Timestamp: base, ModuleID: "a", Category: CategoryStatus, Direction: DirectionIn},
		{Timestamp: base.Add(time.Second), ModuleID: "b", Category: CategoryStatus, Direction: DirectionIn},
		{Timestamp: base.Add(2 * time.Second), ModuleID: "a", Category: CategoryResponse, Direction: DirectionIn, RequestID: "r9"},
		{Timestamp: base.Add(3 * time.Second), ModuleID: "a", Category: CategoryCommand, Direction: DirectionOut, RequestID: "r9"},
	}
	path := writeLog(t, events)

	status := CategoryStatus
	out := DirectionOut
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"module", Filter{ModuleID: "a"}, 3},
		{"category", Filter{Category: &status}, 2},
		{"request", Filter{RequestID: "r9"}, 2},
		{"direction", Filter{Direction: &out}, 1},
		{"window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{ModuleID: "a", Category: &status}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()
			assert.Len(t, readAll(t, r), tt.want)
		})
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := NewSlogAdapter(logger)

	a.Log(Event{ModuleID: "mic-1", RequestID: "r1", Category: CategoryResponse, Message: &MessageEvent{Status: "error", Error: "already recording"}})
	a.Log(Event{Category: CategoryState, StateChange: &StateChangeEvent{Entity: StateEntityRegistry, NewState: "disconnected"}})

	out := buf.String()
	assert.Contains(t, out, "module_id=mic-1")
	assert.Contains(t, out, "request_id=r1")
	assert.Contains(t, out, `error="already recording"`)
	assert.Contains(t, out, "entity=REGISTRY")

	quiet := NewSlogAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	quiet.Log(Event{})
}

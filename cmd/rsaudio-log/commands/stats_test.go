package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rslogger/rsaudio/pkg/log"
)

func TestCollect(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	stats, err := Collect(path)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.TotalEvents)
	assert.Len(t, stats.Sessions, 1)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.EventsByCategory[log.CategoryCommand])
	assert.Equal(t, 2, stats.EventsByDirection[log.DirectionNone])
	assert.True(t, testTime.Equal(stats.TimeRange.Start))
	assert.True(t, testTime.Add(4*time.Second).Equal(stats.TimeRange.End))

	require.Contains(t, stats.Modules, "mic-01")
	mic1 := stats.Modules["mic-01"]
	assert.Equal(t, 2, mic1.Events)
	assert.Equal(t, 1, mic1.Commands)
	assert.Equal(t, 0, mic1.Rejected)
	assert.Equal(t, 12*time.Millisecond, mic1.MaxLatency())

	mic2 := stats.Modules["mic-02"]
	require.NotNil(t, mic2)
	assert.Equal(t, 3, mic2.Events)
	assert.Equal(t, 1, mic2.Rejected)
	assert.Zero(t, mic2.MaxLatency())
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()

	assert.Contains(t, out, "Total Events: 6")
	assert.Contains(t, out, "COMMAND:")
	assert.Contains(t, out, "Modules: 2")
	assert.Contains(t, out, "mic-02: 3 events, 1 commands, 1 rejected, 0 recordings")
	assert.Contains(t, out, "max latency 12.000ms over 1 responses")
	assert.Contains(t, out, "Errors: 1")
}

func TestRunStats_Empty(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	assert.Contains(t, buf.String(), "Total Events: 0")
	assert.NotContains(t, buf.String(), "Time Range")
}

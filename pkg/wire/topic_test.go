package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	tp := NewTopics("")
	assert.Equal(t, "rslogger/audio/mic-1/command", tp.Command("mic-1"))
	assert.Equal(t, "rslogger/audio/mic-1/status", tp.Status("mic-1"))
	assert.Equal(t, "rslogger/audio/mic-1/response", tp.Response("mic-1"))
	assert.Equal(t, "rslogger/audio/mic-1/data", tp.Data("mic-1"))
	assert.Equal(t, "rslogger/audio/+/status", tp.AllModules(ChannelStatus))

	assert.Equal(t, "studio/a", NewTopics("/studio/a/").Base)
}

func TestTopics_Parse(t *testing.T) {
	tp := NewTopics("studio")

	id, ch, err := tp.Parse("studio/mic-1/response")
	require.NoError(t, err)
	assert.Equal(t, "mic-1", id)
	assert.Equal(t, ChannelResponse, ch)

	for _, bad := range []string{
		"other/mic-1/status",
		"studio/mic-1",
		"studio//status",
		"studio/mic-1/status/extra",
		"studio/mic-1/telemetry",
	} {
		_, _, err := tp.Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidTopic, bad)
	}
}

func TestValidModuleID(t *testing.T) {
	assert.True(t, ValidModuleID("mic-1"))
	assert.False(t, ValidModuleID(""))
	assert.False(t, ValidModuleID("a/b"))
	assert.False(t, ValidModuleID("+"))
	assert.False(t, ValidModuleID("#"))
}

package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rslogger/rsaudio/internal/settings"
	"github.com/rslogger/rsaudio/pkg/config"
	"github.com/rslogger/rsaudio/pkg/wire"
)

func TestPrintAudioConfig(t *testing.T) {
	def := wire.DefaultAudioConfig()

	var buf bytes.Buffer
	require.NoError(t, printAudioConfig(nil, def, &buf))
	var got wire.AudioConfig
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, def, got)

	stored := def
	stored.SampleRate = 48000
	stored.Version = 4
	store := &config.MemoryStore{}
	require.NoError(t, store.Save(stored))

	buf.Reset()
	require.NoError(t, printAudioConfig(store, def, &buf))
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, stored, got)
}

func TestResetAudioConfig(t *testing.T) {
	def := wire.DefaultAudioConfig()
	store := config.NewFileStore(filepath.Join(t.TempDir(), "audio.yaml"), "mic-1")

	changed := def
	changed.Channels = 2
	require.NoError(t, store.Save(changed))

	var buf bytes.Buffer
	require.NoError(t, resetAudioConfig(store, def, &buf))
	assert.Contains(t, buf.String(), "reset to defaults")

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, def, *got)

	assert.Error(t, resetAudioConfig(nil, def, &buf))
}

func TestRunLocal_NoFlags(t *testing.T) {
	s := settings.Default()
	done, err := runLocal(&s, &bytes.Buffer{})
	assert.False(t, done)
	assert.NoError(t, err)
}

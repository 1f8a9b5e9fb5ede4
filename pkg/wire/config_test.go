package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultAudioConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*AudioConfig)
		target error
	}{
		{"low rate", func(c *AudioConfig) { c.SampleRate = 100 }, ErrInvalidSampleRate},
		{"no channels", func(c *AudioConfig) { c.Channels = 0 }, ErrInvalidChannels},
		{"too many channels", func(c *AudioConfig) { c.Channels = MaxChannels + 1 }, ErrInvalidChannels},
		{"bad dtype", func(c *AudioConfig) { c.DType = "float64" }, ErrInvalidDType},
		{"empty dir", func(c *AudioConfig) { c.RecordingDir = " " }, ErrEmptyRecordingDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultAudioConfig()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), tt.target)
		})
	}
}

func TestConfigOverride_Apply(t *testing.T) {
	base := DefaultAudioConfig()

	t.Run("empty keeps base", func(t *testing.T) {
		got, err := (&ConfigOverride{}).Apply(base)
		require.NoError(t, err)
		assert.Equal(t, base, got)

		var nilOverride *ConfigOverride
		got, err = nilOverride.Apply(base)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("fields replaced and version bumped", func(t *testing.T) {
		rate, ch := 48000, 2
		got, err := (&ConfigOverride{SampleRate: &rate, Channels: &ch}).Apply(base)
		require.NoError(t, err)
		assert.Equal(t, 48000, got.SampleRate)
		assert.Equal(t, 2, got.Channels)
		assert.Equal(t, base.DType, got.DType)
		assert.Equal(t, base.Version+1, got.Version)
	})

	t.Run("invalid leaves base", func(t *testing.T) {
		dtype := "pcm"
		got, err := (&ConfigOverride{DType: &dtype}).Apply(base)
		assert.ErrorIs(t, err, ErrInvalidDType)
		assert.Equal(t, base, got)
	})
}

func TestParseOverride(t *testing.T) {
	o, err := ParseOverride([]string{"samplerate=48000", "device=hw:2", "dtype=int16"})
	require.NoError(t, err)
	require.NotNil(t, o.SampleRate)
	assert.Equal(t, 48000, *o.SampleRate)
	assert.Equal(t, "hw:2", *o.Device)
	assert.Equal(t, "int16", *o.DType)
	assert.Nil(t, o.Channels)

	_, err = ParseOverride([]string{"samplerate"})
	assert.Error(t, err)
	_, err = ParseOverride([]string{"gain=3"})
	assert.Error(t, err)
	_, err = ParseOverride([]string{"channels=two"})
	assert.Error(t, err)
}

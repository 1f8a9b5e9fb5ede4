package capture

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rslogger/rsaudio/pkg/wire"
)

func TestNewRecordingID(t *testing.T) {
	ts := time.Date(2026, 10, 16, 9, 5, 3, 0, time.UTC)
	assert.Equal(t, "20261016_090503", NewRecordingID(ts))
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("recordings", "recording_take1_mic-1.wav"),
		ArtifactPath("recordings", "take1", "mic-1"))
}

func TestSimulator_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSimulator()
	s.WriteFiles = true
	s.Now = func() time.Time { return clock }

	path := filepath.Join(t.TempDir(), "out", "r.wav")
	req := Request{RecordingID: "r", Path: path, Config: wire.DefaultAudioConfig()}

	_, err := s.Stop(ctx)
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, s.Start(ctx, req))
	assert.ErrorIs(t, s.Start(ctx, req), ErrAlreadyRunning)
	assert.True(t, s.Running())

	clock = clock.Add(3 * time.Second)
	art, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r", art.RecordingID)
	assert.Equal(t, 3*time.Second, art.Duration)
	assert.False(t, s.Running())
	assert.Equal(t, 1, s.Starts())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSimulator_Fault(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()

	assert.ErrorIs(t, s.Fail(errors.New("x")), ErrNotRunning)

	require.NoError(t, s.Start(ctx, Request{RecordingID: "r"}))
	require.NoError(t, s.Fail(errors.New("unplugged")))

	select {
	case err := <-s.Faults():
		assert.ErrorContains(t, err, "unplugged")
		assert.Equal(t, "r", FaultRecording(err))
	case <-time.After(time.Second):
		t.Fatal("no fault delivered")
	}
	assert.False(t, s.Running())

	_, err := s.Stop(ctx)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSimulator_DeviceLost(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()

	require.NoError(t, s.Start(ctx, Request{RecordingID: "r"}))
	assert.ErrorIs(t, s.DeviceLost(errors.New("x")), ErrAlreadyRunning)
	_, err := s.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, s.DeviceLost(errors.New("gone")))
	err = <-s.Faults()
	assert.ErrorContains(t, err, "gone")
	assert.Empty(t, FaultRecording(err))
	assert.Empty(t, FaultRecording(errors.New("plain")))
}

func TestSimulator_StartErr(t *testing.T) {
	s := NewSimulator()
	s.StartErr = ErrUnavailable
	assert.ErrorIs(t, s.Start(context.Background(), Request{}), ErrUnavailable)
	assert.False(t, s.Running())
}

func TestFFmpeg_Args(t *testing.T) {
	f := &FFmpeg{cfg: FFmpegConfig{Binary: "ffmpeg", InputFormat: "alsa"}}
	cfg := wire.DefaultAudioConfig()
	cfg.SampleRate = 48000
	cfg.Channels = 2
	cfg.DType = "int16"

	args := f.Args(Request{Path: "/tmp/x.wav", Config: cfg})
	assert.Equal(t, []string{
		"-hide_banner", "-nostdin",
		"-f", "alsa",
		"-i", "default",
		"-ac", "2",
		"-ar", "48000",
		"-c:a", "pcm_s16le",
		"-y", "/tmp/x.wav",
	}, args)

	mac := &FFmpeg{cfg: FFmpegConfig{InputFormat: "avfoundation"}}
	args = mac.Args(Request{Path: "p", Config: wire.DefaultAudioConfig()})
	assert.Contains(t, args, ":default")
	assert.Contains(t, args, "pcm_f32le")
}

func TestFFmpeg_ListDevicesArgs(t *testing.T) {
	linux := &FFmpeg{cfg: FFmpegConfig{InputFormat: "pulse"}}
	assert.Equal(t, []string{"-hide_banner", "-sources", "pulse"}, linux.ListDevicesArgs())

	mac := &FFmpeg{cfg: FFmpegConfig{InputFormat: "avfoundation"}}
	assert.Equal(t, []string{"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""}, mac.ListDevicesArgs())
}

func TestFFmpeg_ListDevices(t *testing.T) {
	echo, err := exec.LookPath("echo")
	if err != nil {
		t.Skip("echo not available")
	}
	f := &FFmpeg{cfg: FFmpegConfig{Binary: echo, InputFormat: "alsa"}}

	out, err := f.ListDevices(t.Context())
	require.NoError(t, err)
	assert.Contains(t, out, "-sources alsa")
}

func TestNewFFmpeg_MissingBinary(t *testing.T) {
	_, err := NewFFmpeg(FFmpegConfig{Binary: "definitely-not-ffmpeg-binary"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

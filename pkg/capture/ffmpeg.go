package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// DefaultStopTimeout bounds how long Stop waits for ffmpeg to finalize the
// file before killing it.
const DefaultStopTimeout = 5 * time.Second

// FFmpegConfig configures an FFmpeg capture.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg" on PATH.
	Binary string

	// InputFormat is the ffmpeg input device format ("alsa", "pulse",
	// "avfoundation"). Defaults by operating system.
	InputFormat string

	// StopTimeout overrides DefaultStopTimeout.
	StopTimeout time.Duration

	// Logger receives process diagnostics. If nil, logging is disabled.
	Logger *slog.Logger
}

// FFmpeg captures audio by running an ffmpeg subprocess per recording.
// ffmpeg's stderr is kept next to the artifact as {path}.ffmpeg.log.
type FFmpeg struct {
	cfg    FFmpegConfig
	logger *slog.Logger
	faults chan error

	mu       sync.Mutex
	cmd      *exec.Cmd
	req      Request
	started  time.Time
	exited   chan error
	stopping bool
	logFile  *os.File
}

// NewFFmpeg returns an FFmpeg capture. It fails if the binary is missing.
func NewFFmpeg(cfg FFmpegConfig) (*FFmpeg, error) {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, cfg.Binary)
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = defaultInputFormat()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FFmpeg{
		cfg:    cfg,
		logger: logger.With("component", "ffmpeg"),
		faults: make(chan error, 1),
	}, nil
}

func defaultInputFormat() string {
	if runtime.GOOS == "darwin" {
		return "avfoundation"
	}
	return "alsa"
}

// codecFor maps a sample format to ffmpeg's PCM encoder.
func codecFor(dtype string) string {
	switch dtype {
	case "int16":
		return "pcm_s16le"
	case "int32":
		return "pcm_s32le"
	default:
		return "pcm_f32le"
	}
}

// Args returns the ffmpeg command line for req.
func (f *FFmpeg) Args(req Request) []string {
	device := req.Config.Device
	if device == "" {
		device = "default"
		if f.cfg.InputFormat == "avfoundation" {
			device = ":default"
		}
	}
	return []string{
		"-hide_banner",
		"-nostdin",
		"-f", f.cfg.InputFormat,
		"-i", device,
		"-ac", strconv.Itoa(req.Config.Channels),
		"-ar", strconv.Itoa(req.Config.SampleRate),
		"-c:a", codecFor(req.Config.DType),
		"-y",
		req.Path,
	}
}

// ListDevicesArgs returns the ffmpeg command line that reports the input
// devices of the configured format.
func (f *FFmpeg) ListDevicesArgs() []string {
	if f.cfg.InputFormat == "avfoundation" {
		return []string{"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""}
	}
	return []string{"-hide_banner", "-sources", f.cfg.InputFormat}
}

// ListDevices runs ffmpeg's device listing and returns its report.
func (f *FFmpeg) ListDevices(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, f.cfg.Binary, f.ListDevicesArgs()...).CombinedOutput()
	// avfoundation exits non-zero after listing since "" is not an input.
	if len(out) > 0 {
		return string(out), nil
	}
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	return "", nil
}

// Start launches ffmpeg for req.
func (f *FFmpeg) Start(_ context.Context, req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cmd != nil {
		return ErrAlreadyRunning
	}
	if err := os.MkdirAll(filepath.Dir(req.Path), 0755); err != nil {
		return fmt.Errorf("create recording directory: %w", err)
	}

	cmd := exec.Command(f.cfg.Binary, f.Args(req)...)
	if lf, err := os.Create(req.Path + ".ffmpeg.log"); err == nil {
		cmd.Stderr = lf
		f.logFile = lf
	}
	if err := cmd.Start(); err != nil {
		f.closeLog()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	f.cmd = cmd
	f.req = req
	f.started = time.Now()
	f.stopping = false
	f.exited = make(chan error, 1)

	go f.watch(cmd, f.exited)

	f.logger.Info("capture started", "recording_id", req.RecordingID, "path", req.Path, "pid", cmd.Process.Pid)
	return nil
}

// watch waits for the process. An exit that Stop did not ask for is a fault.
func (f *FFmpeg) watch(cmd *exec.Cmd, exited chan<- error) {
	err := cmd.Wait()
	exited <- err

	f.mu.Lock()
	unexpected := f.cmd == cmd && !f.stopping
	rid := f.req.RecordingID
	if unexpected {
		f.cmd = nil
		f.closeLog()
	}
	f.mu.Unlock()

	if unexpected {
		if err == nil {
			err = errors.New("ffmpeg exited")
		}
		f.logger.Warn("capture process exited unexpectedly", "error", err)
		select {
		case f.faults <- &Fault{RecordingID: rid, Err: fmt.Errorf("capture process died: %w", err)}:
		default:
		}
	}
}

// Stop interrupts ffmpeg so it finalizes the file, killing it after the
// stop timeout.
func (f *FFmpeg) Stop(ctx context.Context) (Artifact, error) {
	f.mu.Lock()
	cmd := f.cmd
	if cmd == nil {
		f.mu.Unlock()
		return Artifact{}, ErrNotRunning
	}
	f.stopping = true
	exited := f.exited
	art := Artifact{
		RecordingID: f.req.RecordingID,
		Path:        f.req.Path,
		StartedAt:   f.started,
	}
	f.mu.Unlock()

	_ = cmd.Process.Signal(os.Interrupt)

	timer := time.NewTimer(f.cfg.StopTimeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-exited:
	case <-timer.C:
		_ = cmd.Process.Kill()
		waitErr = <-exited
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		waitErr = <-exited
	}

	f.mu.Lock()
	f.cmd = nil
	f.closeLog()
	f.mu.Unlock()

	art.Duration = time.Since(art.StartedAt)

	// ffmpeg exits non-zero (255) on SIGINT after writing a valid file.
	if _, err := os.Stat(art.Path); err != nil {
		return art, fmt.Errorf("recording not written: %w (ffmpeg: %v)", err, waitErr)
	}
	f.logger.Info("capture stopped", "recording_id", art.RecordingID, "duration", art.Duration)
	return art, nil
}

// Faults returns the fault channel.
func (f *FFmpeg) Faults() <-chan error {
	return f.faults
}

func (f *FFmpeg) closeLog() {
	if f.logFile != nil {
		f.logFile.Close()
		f.logFile = nil
	}
}

var _ Capture = (*FFmpeg)(nil)

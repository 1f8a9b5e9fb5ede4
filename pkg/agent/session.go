package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rslogger/rsaudio/pkg/capture"
	"github.com/rslogger/rsaudio/pkg/duration"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// Session is a recording in progress.
type Session struct {
	RecordingID string
	StartTime   time.Time

	// Duration is the requested length; zero means open-ended.
	Duration time.Duration

	// FilePath is where the capture writes the artifact.
	FilePath string

	Config wire.AudioConfig
}

// Elapsed returns how long the session has been recording at now.
func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// beginRecording starts capture for cmd and enters recording. The returned
// error is a rejection reason suitable for the response.
func (a *Agent) beginRecording(ctx context.Context, cmd *wire.Command) (*Session, error) {
	audio := a.audio
	if !cmd.Config.IsEmpty() {
		applied, err := cmd.Config.Apply(audio)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", wire.ReasonInvalidConfig, err)
		}
		audio = applied
	}

	now := a.cfg.Now()
	rid := cmd.RecordingID
	if rid == "" {
		rid = capture.NewRecordingID(now)
	}
	s := &Session{
		RecordingID: rid,
		StartTime:   now,
		FilePath:    capture.ArtifactPath(audio.RecordingDir, rid, a.cfg.ModuleID),
		Config:      audio,
	}
	if d, ok := cmd.RecordingDuration(); ok {
		if d > duration.MaxDuration {
			return nil, fmt.Errorf("%s: longer than %s", wire.ReasonInvalidDuration, duration.MaxDuration)
		}
		s.Duration = d
	}

	req := capture.Request{RecordingID: rid, Path: s.FilePath, Config: audio}
	if err := a.capture.Start(ctx, req); err != nil {
		a.logger.Error("capture start failed", "recording_id", rid, "error", err)
		return nil, fmt.Errorf("%s: %v", wire.ReasonCaptureFailed, err)
	}

	// A start override becomes the module's current configuration.
	a.audio = audio
	a.session = s
	if s.Duration > 0 {
		if err := a.timers.Set(rid, s.Duration); err != nil {
			a.logger.Warn("duration timer not armed", "recording_id", rid, "error", err)
		}
	}
	a.setState(wire.StateRecording, "start")

	a.logger.Info("recording started", "recording_id", rid, "path", s.FilePath, "duration", s.Duration)
	a.publishStatus(ctx, wire.EventRecordingStarted, nil)
	return s, nil
}

// finishRecording stops the capture, announces the artifact and returns to
// idle. It must only be called while a session exists.
func (a *Agent) finishRecording(ctx context.Context, reason string) (*Session, capture.Artifact, error) {
	s := a.session
	_ = a.timers.Cancel(s.RecordingID)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.StopTimeout)
	defer cancel()
	art, err := a.capture.Stop(stopCtx)
	a.session = nil

	if err != nil {
		a.logger.Error("capture stop failed", "recording_id", s.RecordingID, "error", err)
		a.fault(ctx, fmt.Errorf("finalize recording %s: %w", s.RecordingID, err))
		return s, art, err
	}

	if art.Path == "" {
		art.Path = s.FilePath
	}
	if art.Duration <= 0 {
		art.Duration = s.Elapsed(a.cfg.Now())
	}
	s.FilePath = art.Path

	a.setState(wire.StateIdle, reason)
	a.logger.Info("recording completed", "recording_id", s.RecordingID, "path", art.Path, "duration", art.Duration, "reason", reason)

	a.publishStatus(ctx, wire.EventRecordingCompleted, func(st *wire.Status) {
		st.RecordingID = s.RecordingID
		st.FilePath = art.Path
		st.Duration = art.Duration.Seconds()
	})
	a.publishData(ctx, &wire.DataEvent{
		Event:       wire.DataRecordingComplete,
		ModuleID:    a.cfg.ModuleID,
		RecordingID: s.RecordingID,
		Filename:    filepath.Base(art.Path),
		Duration:    art.Duration.Seconds(),
		Timestamp:   a.cfg.Now(),
	})
	return s, art, nil
}

// fault reports a capture failure and recovers to idle.
func (a *Agent) fault(ctx context.Context, err error) {
	var rid string
	if a.session != nil {
		rid = a.session.RecordingID
		_ = a.timers.Cancel(rid)
		a.session = nil
	}
	a.logger.Error("capture fault", "recording_id", rid, "error", err)
	a.rec.Error(a.cfg.ModuleID, "", "", "capture", err)

	a.setState(wire.StateError, err.Error())
	a.publishStatus(ctx, wire.EventError, func(st *wire.Status) {
		st.RecordingID = rid
		st.Error = err.Error()
	})
	a.setState(wire.StateIdle, "recovered")
	a.publishStatus(ctx, wire.EventStateChange, nil)
}

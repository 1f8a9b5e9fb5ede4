package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rslogger/rsaudio/pkg/bus"
	"github.com/rslogger/rsaudio/pkg/capture"
	"github.com/rslogger/rsaudio/pkg/config"
	"github.com/rslogger/rsaudio/pkg/duration"
	"github.com/rslogger/rsaudio/pkg/log"
	"github.com/rslogger/rsaudio/pkg/version"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// Agent errors.
var (
	// ErrShutdown is returned by Run after a shutdown command.
	ErrShutdown = errors.New("agent shut down")

	ErrAlreadyRunning = errors.New("agent already running")
)

const publishTimeout = 5 * time.Second

// Snapshot is a copy of the agent's state, safe to read from any goroutine.
type Snapshot struct {
	ModuleID    string
	State       wire.State
	RecordingID string
	Config      wire.AudioConfig
	Since       time.Time
}

type eventKind uint8

const (
	eventExpired eventKind = iota
	eventReconnected
	eventShutdown
)

type event struct {
	kind        eventKind
	recordingID string
}

// Agent is a recording module.
type Agent struct {
	cfg     Config
	bus     bus.Client
	capture capture.Capture
	store   config.Store
	topics  wire.Topics
	logger  *slog.Logger
	rec     *log.Recorder

	timers *duration.Manager
	replay *lru.Cache[string, []byte]

	events  chan event
	done    chan struct{}
	running atomic.Bool

	snap atomic.Pointer[Snapshot]

	// Owned by the Run goroutine.
	state   wire.State
	audio   wire.AudioConfig
	session *Session
}

// New creates an agent. store may be nil, in which case cfg.Audio is used
// and save requests fail.
func New(cfg Config, client bus.Client, capt capture.Capture, store config.Store) (*Agent, error) {
	cfg.applyDefaults()
	if cfg.Audio == (wire.AudioConfig{}) {
		cfg.Audio = wire.DefaultAudioConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	audio, err := config.LoadOrDefault(store, cfg.Audio)
	if err != nil {
		cfg.Logger.Warn("stored config unusable, using defaults", "error", err)
	}

	replay, err := lru.New[string, []byte](cfg.ReplayCacheSize)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:     cfg,
		bus:     client,
		capture: capt,
		store:   store,
		topics:  wire.NewTopics(cfg.BaseTopic),
		logger:  cfg.Logger.With("module_id", cfg.ModuleID),
		rec:     log.NewRecorder(cfg.ProtocolLogger, log.RoleModule, cfg.ModuleID),
		replay:  replay,
		events:  make(chan event, 8),
		done:    make(chan struct{}),
		state:   wire.StateIdle,
		audio:   audio,
	}
	a.timers = duration.NewManager(func(rid string) {
		a.post(event{kind: eventExpired, recordingID: rid})
	})
	a.publishSnapshot()
	return a, nil
}

// ModuleID returns the module's id.
func (a *Agent) ModuleID() string {
	return a.cfg.ModuleID
}

// Snapshot returns the most recent state.
func (a *Agent) Snapshot() Snapshot {
	return *a.snap.Load()
}

// RequestShutdown asks Run to finish any recording and return ErrShutdown,
// as if a shutdown command had arrived.
func (a *Agent) RequestShutdown() {
	a.post(event{kind: eventShutdown})
}

func (a *Agent) post(ev event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

// Run subscribes to the command topic and processes events until ctx is
// cancelled or a shutdown is requested. A recording in progress when ctx
// ends is finalized before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(a.done)
	defer a.timers.CancelAll()

	sub, err := a.bus.Subscribe(ctx, a.topics.Command(a.cfg.ModuleID))
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	a.bus.OnConnectionChange(func(connected bool) {
		if connected {
			a.post(event{kind: eventReconnected})
		}
	})

	a.logger.Info("module agent started",
		"topic", sub.Pattern(),
		"protocol", version.Current,
		"session", a.rec.SessionID())
	a.publishStatus(ctx, wire.EventStateChange, nil)

	var heartbeat <-chan time.Time
	if !a.cfg.DisableHeartbeat {
		t := time.NewTicker(a.cfg.HeartbeatInterval)
		defer t.Stop()
		heartbeat = t.C
	}

	for {
		select {
		case <-ctx.Done():
			a.drain(ctx)
			return ctx.Err()

		case msg := <-sub.C():
			if err := a.handleMessage(ctx, msg); err != nil {
				return err
			}

		case <-sub.Done():
			return bus.ErrClosed

		case <-heartbeat:
			a.publishStatus(ctx, wire.EventHeartbeat, nil)

		case err := <-a.capture.Faults():
			a.captureFault(ctx, err)

		case ev := <-a.events:
			if err := a.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// captureFault handles an asynchronous capture failure. A fault naming a
// recording other than the current one arrived after that session ended.
func (a *Agent) captureFault(ctx context.Context, err error) {
	rid := capture.FaultRecording(err)
	if rid != "" && (a.session == nil || a.session.RecordingID != rid) {
		a.logger.Warn("ignoring fault from finished capture", "recording_id", rid, "error", err)
		return
	}
	a.fault(ctx, err)
}

func (a *Agent) handleEvent(ctx context.Context, ev event) error {
	switch ev.kind {
	case eventExpired:
		if a.session == nil || a.session.RecordingID != ev.recordingID {
			return nil
		}
		a.logger.Info("recording duration elapsed", "recording_id", ev.recordingID)
		_, _, _ = a.finishRecording(ctx, "duration elapsed")

	case eventReconnected:
		a.logger.Info("bus reconnected, republishing status")
		a.publishStatus(ctx, wire.EventStateChange, nil)

	case eventShutdown:
		a.logger.Info("shutdown requested")
		if a.session != nil {
			_, _, _ = a.finishRecording(ctx, "shutdown")
		}
		return ErrShutdown
	}
	return nil
}

// drain finalizes a running recording after ctx has ended.
func (a *Agent) drain(ctx context.Context) {
	if a.session == nil {
		return
	}
	a.logger.Info("finalizing recording before exit", "recording_id", a.session.RecordingID)
	_, _, _ = a.finishRecording(context.WithoutCancel(ctx), "agent stopping")
}

func (a *Agent) setState(s wire.State, reason string) {
	if a.state == s {
		return
	}
	old := a.state
	a.state = s
	a.rec.StateChange(log.StateEntityModule, a.cfg.ModuleID, string(old), string(s), reason)
	a.logger.Debug("state changed", "from", old, "to", s, "reason", reason)
	a.publishSnapshot()
}

func (a *Agent) publishSnapshot() {
	s := &Snapshot{
		ModuleID: a.cfg.ModuleID,
		State:    a.state,
		Config:   a.audio,
		Since:    a.cfg.Now(),
	}
	if a.session != nil {
		s.RecordingID = a.session.RecordingID
	}
	a.snap.Store(s)
}

func (a *Agent) result() *wire.Result {
	audio := a.audio
	r := &wire.Result{State: a.state, Config: &audio}
	if a.session != nil {
		r.RecordingID = a.session.RecordingID
		r.FilePath = a.session.FilePath
		r.Duration = a.session.Elapsed(a.cfg.Now()).Seconds()
	}
	return r
}

func (a *Agent) publish(ctx context.Context, topic string, payload []byte) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := a.bus.Publish(pctx, topic, payload)
	if err != nil {
		a.logger.Warn("publish failed", "topic", topic, "error", err)
	}
	return err
}

func (a *Agent) publishStatus(ctx context.Context, ev wire.StatusEvent, fill func(*wire.Status)) {
	audio := a.audio
	st := &wire.Status{
		ModuleID:  a.cfg.ModuleID,
		State:     a.state,
		Event:     ev,
		Timestamp: a.cfg.Now(),
		Version:   version.Current,
		Config:    &audio,
	}
	if a.session != nil {
		st.RecordingID = a.session.RecordingID
	}
	if fill != nil {
		fill(st)
	}

	data, err := wire.EncodeStatus(st)
	if err != nil {
		a.logger.Error("encode status", "error", err)
		return
	}
	topic := a.topics.Status(a.cfg.ModuleID)
	if a.publish(ctx, topic, data) == nil {
		a.rec.Status(log.DirectionOut, topic, st, data)
	}
}

func (a *Agent) publishData(ctx context.Context, de *wire.DataEvent) {
	data, err := wire.Marshal(de)
	if err != nil {
		a.logger.Error("encode data event", "error", err)
		return
	}
	topic := a.topics.Data(a.cfg.ModuleID)
	if a.publish(ctx, topic, data) == nil {
		a.rec.Data(log.DirectionOut, topic, de, data)
	}
}

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rslogger/rsaudio/pkg/bus"
	"github.com/rslogger/rsaudio/pkg/capture"
	"github.com/rslogger/rsaudio/pkg/log"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// Defaults.
const (
	DefaultStaleAfter            = 90 * time.Second
	DefaultLivenessCheckInterval = 10 * time.Second
)

// ErrInvalidConfig is returned by New for unusable settings.
var ErrInvalidConfig = errors.New("invalid controller configuration")

// Config configures a Controller.
type Config struct {
	// BaseTopic is the topic prefix. Defaults to wire.DefaultBaseTopic.
	BaseTopic string

	// CommandTimeout bounds each command's wait for a response.
	CommandTimeout time.Duration

	// StaleAfter is how long a module may stay silent before it is
	// reported disconnected.
	StaleAfter time.Duration

	// LivenessCheckInterval is the period of the staleness sweep.
	LivenessCheckInterval time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// Logger is the operational logger. If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures every message sent and received.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseTopic:             wire.DefaultBaseTopic,
		CommandTimeout:        DefaultCommandTimeout,
		StaleAfter:            DefaultStaleAfter,
		LivenessCheckInterval: DefaultLivenessCheckInterval,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.CommandTimeout < 0 {
		return fmt.Errorf("%w: negative command timeout", ErrInvalidConfig)
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("%w: negative stale threshold", ErrInvalidConfig)
	}
	return nil
}

// StartOptions parameterize a start command.
type StartOptions struct {
	// Duration stops the recording automatically. Zero records until stopped.
	Duration time.Duration

	// RecordingID names the recording. StartAll generates one shared id
	// when empty; Start leaves the choice to the module.
	RecordingID string

	// Config overrides the module configuration for this recording.
	Config *wire.ConfigOverride
}

func (o StartOptions) command() wire.Command {
	cmd := wire.Command{
		Command:     wire.CommandStart,
		RecordingID: o.RecordingID,
		Config:      o.Config,
	}
	cmd.WithDuration(o.Duration)
	return cmd
}

// Controller supervises the modules under one base topic.
type Controller struct {
	cfg        Config
	client     bus.Client
	topics     wire.Topics
	logger     *slog.Logger
	rec        *log.Recorder
	registry   *Registry
	dispatcher *Dispatcher

	ready     chan struct{}
	readyOnce sync.Once

	handlersMu sync.RWMutex
	handlers   []EventHandler
}

// New creates a controller publishing and subscribing through client.
func New(cfg Config, client bus.Client) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.LivenessCheckInterval <= 0 {
		cfg.LivenessCheckInterval = DefaultLivenessCheckInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "controller")

	topics := wire.NewTopics(cfg.BaseTopic)
	rec := log.NewRecorder(cfg.ProtocolLogger, log.RoleController, "")
	return &Controller{
		cfg:        cfg,
		client:     client,
		topics:     topics,
		logger:     logger,
		rec:        rec,
		registry:   NewRegistry(cfg.StaleAfter, cfg.Now),
		dispatcher: NewDispatcher(client, topics, cfg.CommandTimeout, logger, rec),
		ready:      make(chan struct{}),
	}, nil
}

// Registry returns the module registry.
func (c *Controller) Registry() *Registry { return c.registry }

// Dispatcher returns the command dispatcher.
func (c *Controller) Dispatcher() *Dispatcher { return c.dispatcher }

// Topics returns the topic layout.
func (c *Controller) Topics() wire.Topics { return c.topics }

// Ready is closed once Run has subscribed to the module topics.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// OnEvent registers a handler for fleet events.
func (c *Controller) OnEvent(fn EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *Controller) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = c.cfg.Now()
	}
	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Run subscribes to every module's status, response and data topics and
// processes messages until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	status, err := c.client.Subscribe(ctx, c.topics.AllModules(wire.ChannelStatus))
	if err != nil {
		return err
	}
	defer status.Unsubscribe()
	responses, err := c.client.Subscribe(ctx, c.topics.AllModules(wire.ChannelResponse))
	if err != nil {
		return err
	}
	defer responses.Unsubscribe()
	data, err := c.client.Subscribe(ctx, c.topics.AllModules(wire.ChannelData))
	if err != nil {
		return err
	}
	defer data.Unsubscribe()

	sweep := time.NewTicker(c.cfg.LivenessCheckInterval)
	defer sweep.Stop()

	c.logger.Info("controller started", "base", c.topics.Base, "session", c.rec.SessionID())
	c.readyOnce.Do(func() { close(c.ready) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-status.C():
			c.handleStatus(m)
		case m := <-responses.C():
			c.handleResponse(m)
		case m := <-data.C():
			c.handleData(m)
		case <-sweep.C:
			c.sweep()
		case <-status.Done():
			return bus.ErrClosed
		}
	}
}

func (c *Controller) moduleOf(topic string, want wire.Channel) (string, bool) {
	id, ch, err := c.topics.Parse(topic)
	if err != nil || ch != want {
		c.logger.Debug("ignoring message on unexpected topic", "topic", topic)
		return "", false
	}
	return id, true
}

func (c *Controller) handleStatus(m bus.Message) {
	id, ok := c.moduleOf(m.Topic, wire.ChannelStatus)
	if !ok {
		return
	}
	st, err := wire.DecodeStatus(m.Payload)
	if err != nil {
		c.logger.Warn("dropping malformed status", "topic", m.Topic, "error", err)
		c.rec.Error(id, m.Topic, "", "decode status", err)
		return
	}
	if st.ModuleID != id {
		c.logger.Warn("status module id does not match topic", "topic", m.Topic, "module_id", st.ModuleID)
		return
	}
	c.rec.Status(log.DirectionIn, m.Topic, st, m.Payload)

	prev, known := c.registry.Get(id)
	change, err := c.registry.Observe(st)
	if err != nil {
		c.logger.Warn("ignoring module", "module_id", id, "error", err)
		return
	}

	switch change {
	case ChangeDiscovered:
		c.logger.Info("module discovered", "module_id", id, "state", st.State, "version", st.Version)
		c.rec.StateChange(log.StateEntityRegistry, id, "", string(st.State), "discovered")
		c.emit(Event{Kind: EventModuleDiscovered, ModuleID: id})
	case ChangeRecovered:
		c.disconnected(id)
		fallthrough
	case ChangeReconnected:
		c.logger.Info("module reconnected", "module_id", id, "state", st.State)
		c.rec.StateChange(log.StateEntityRegistry, id, string(wire.StateDisconnected), string(st.State), "status received")
		c.emit(Event{Kind: EventModuleReconnected, ModuleID: id})
	default:
		if known && prev.ReportedState != st.State {
			c.logger.Debug("module state changed", "module_id", id, "from", prev.ReportedState, "to", st.State)
		}
	}
	if st.Event == wire.EventError {
		c.logger.Warn("module reported error", "module_id", id, "error", st.Error)
		c.emit(Event{Kind: EventModuleError, ModuleID: id, Error: st.Error})
	}
}

func (c *Controller) handleResponse(m bus.Message) {
	id, ok := c.moduleOf(m.Topic, wire.ChannelResponse)
	if !ok {
		return
	}
	resp, err := wire.DecodeResponse(m.Payload)
	if err != nil {
		c.logger.Warn("dropping malformed response", "topic", m.Topic, "error", err)
		c.rec.Error(id, m.Topic, "", "decode response", err)
		return
	}
	c.rec.Response(log.DirectionIn, id, m.Topic, resp, m.Payload, nil)
	c.dispatcher.HandleResponse(id, resp)
}

func (c *Controller) handleData(m bus.Message) {
	id, ok := c.moduleOf(m.Topic, wire.ChannelData)
	if !ok {
		return
	}
	de, err := wire.DecodeDataEvent(m.Payload)
	if err != nil {
		c.logger.Warn("dropping malformed data event", "topic", m.Topic, "error", err)
		c.rec.Error(id, m.Topic, "", "decode data event", err)
		return
	}
	c.rec.Data(log.DirectionIn, m.Topic, de, m.Payload)
	if de.Event != wire.DataRecordingComplete {
		return
	}
	de.ModuleID = id
	c.registry.RecordCompletion(de)

	rec := &Recording{
		RecordingID: de.RecordingID,
		Filename:    de.Filename,
		Duration:    time.Duration(de.Duration * float64(time.Second)),
		CompletedAt: de.Timestamp,
	}
	c.logger.Info("recording complete", "module_id", id, "recording_id", de.RecordingID, "file", de.Filename)
	c.emit(Event{Kind: EventRecordingComplete, ModuleID: id, Recording: rec})
}

func (c *Controller) sweep() {
	for _, id := range c.registry.Sweep() {
		c.disconnected(id)
	}
}

func (c *Controller) disconnected(id string) {
	c.logger.Warn("module disconnected", "module_id", id, "stale_after", c.cfg.StaleAfter)
	c.rec.StateChange(log.StateEntityRegistry, id, "", string(wire.StateDisconnected), "heartbeat expired")
	c.emit(Event{Kind: EventModuleDisconnected, ModuleID: id})
}

// ModuleStatus returns a copy of the registry.
func (c *Controller) ModuleStatus() map[string]ModuleStatus {
	return c.registry.Snapshot()
}

// Module returns one module's status.
func (c *Controller) Module(id string) (ModuleStatus, bool) {
	return c.registry.Get(id)
}

// StartAll starts a synchronized recording on every live module. All
// modules share one recording id.
func (c *Controller) StartAll(ctx context.Context, opts StartOptions) BroadcastResult {
	if opts.RecordingID == "" {
		opts.RecordingID = capture.NewRecordingID(c.cfg.Now())
	}
	targets := c.registry.Live()
	if len(targets) == 0 {
		c.logger.Warn("start-all with no live modules")
		return BroadcastResult{}
	}
	c.logger.Info("starting synchronized recording", "recording_id", opts.RecordingID, "modules", len(targets), "duration", opts.Duration)
	return c.dispatcher.Broadcast(ctx, targets, opts.command())
}

// StopAll stops recording on every live module.
func (c *Controller) StopAll(ctx context.Context) BroadcastResult {
	targets := c.registry.Live()
	if len(targets) == 0 {
		return BroadcastResult{}
	}
	return c.dispatcher.Broadcast(ctx, targets, wire.Command{Command: wire.CommandStop})
}

// Send dispatches an arbitrary command to one module.
func (c *Controller) Send(ctx context.Context, moduleID string, cmd wire.Command) Outcome {
	return c.dispatcher.Send(ctx, moduleID, cmd)
}

// Start starts a recording on one module.
func (c *Controller) Start(ctx context.Context, moduleID string, opts StartOptions) Outcome {
	return c.dispatcher.Send(ctx, moduleID, opts.command())
}

// Stop stops one module's recording.
func (c *Controller) Stop(ctx context.Context, moduleID string) Outcome {
	return c.dispatcher.Send(ctx, moduleID, wire.Command{Command: wire.CommandStop})
}

// Status queries one module directly.
func (c *Controller) Status(ctx context.Context, moduleID string) Outcome {
	return c.dispatcher.Send(ctx, moduleID, wire.Command{Command: wire.CommandStatus})
}

// Configure changes one module's configuration, optionally persisting it.
func (c *Controller) Configure(ctx context.Context, moduleID string, override *wire.ConfigOverride, save bool) Outcome {
	return c.dispatcher.Send(ctx, moduleID, wire.Command{
		Command: wire.CommandConfig,
		Config:  override,
		Save:    save,
	})
}

// Shutdown asks one module to exit.
func (c *Controller) Shutdown(ctx context.Context, moduleID string) Outcome {
	return c.dispatcher.Send(ctx, moduleID, wire.Command{Command: wire.CommandShutdown})
}

package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rslogger/rsaudio/pkg/log"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// Defaults.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReplayCacheSize   = 256
	DefaultStopTimeout       = 10 * time.Second
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid agent configuration")

// Config configures an Agent.
type Config struct {
	// ModuleID identifies this module on the bus. Required.
	ModuleID string

	// BaseTopic is the topic prefix. Defaults to wire.DefaultBaseTopic.
	BaseTopic string

	// HeartbeatInterval is the period between heartbeat status updates.
	HeartbeatInterval time.Duration

	// DisableHeartbeat turns periodic status updates off.
	DisableHeartbeat bool

	// Audio is the configuration used when the store holds none.
	Audio wire.AudioConfig

	// ReplayCacheSize bounds how many responses are kept for duplicate
	// commands.
	ReplayCacheSize int

	// StopTimeout bounds finalizing a capture during shutdown.
	StopTimeout time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// Logger is the operational logger. If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures every message sent and received.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a configuration with defaults for everything but
// ModuleID.
func DefaultConfig() Config {
	return Config{
		BaseTopic:         wire.DefaultBaseTopic,
		HeartbeatInterval: DefaultHeartbeatInterval,
		Audio:             wire.DefaultAudioConfig(),
		ReplayCacheSize:   DefaultReplayCacheSize,
		StopTimeout:       DefaultStopTimeout,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !wire.ValidModuleID(c.ModuleID) {
		return fmt.Errorf("%w: module id %q", ErrInvalidConfig, c.ModuleID)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReplayCacheSize <= 0 {
		c.ReplayCacheSize = DefaultReplayCacheSize
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

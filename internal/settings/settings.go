// Package settings loads process settings for the rsaudio binaries.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// RSAUDIO_* environment variables. A double underscore separates levels, so
// RSAUDIO_BROKER__URL sets broker.url. Command-line flags are applied by the
// binaries afterwards.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/rslogger/rsaudio/pkg/agent"
	"github.com/rslogger/rsaudio/pkg/bus"
	"github.com/rslogger/rsaudio/pkg/connection"
	"github.com/rslogger/rsaudio/pkg/controller"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "RSAUDIO_"

// Capture backends.
const (
	CaptureSimulator = "simulator"
	CaptureFFmpeg    = "ffmpeg"
)

// ErrInvalid is returned for settings that fail validation.
var ErrInvalid = errors.New("invalid settings")

// Settings holds everything both binaries read.
type Settings struct {
	Broker     Broker     `koanf:"broker"`
	BaseTopic  string     `koanf:"base_topic"`
	Log        Log        `koanf:"log"`
	Module     Module     `koanf:"module"`
	Controller Controller `koanf:"controller"`
}

// Broker holds MQTT connection settings.
type Broker struct {
	URL            string                   `koanf:"url"`
	ClientID       string                   `koanf:"client_id"`
	Username       string                   `koanf:"username"`
	Password       string                   `koanf:"password"`
	CACert         string                   `koanf:"ca_cert"`
	KeepAlive      time.Duration            `koanf:"keep_alive"`
	ConnectTimeout time.Duration            `koanf:"connect_timeout"`
	Reconnect      connection.BackoffConfig `koanf:"reconnect"`
}

// Log holds logging settings.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`

	// ProtocolLog is a .rlog file capturing every message. Empty disables it.
	ProtocolLog string `koanf:"protocol_log"`
}

// Module holds agent settings.
type Module struct {
	ID                string           `koanf:"id"`
	HeartbeatInterval time.Duration    `koanf:"heartbeat_interval"`
	DisableHeartbeat  bool             `koanf:"disable_heartbeat"`
	Capture           string           `koanf:"capture"`
	FFmpegBinary      string           `koanf:"ffmpeg_binary"`
	InputFormat       string           `koanf:"input_format"`
	ConfigFile        string           `koanf:"config_file"`
	Audio             wire.AudioConfig `koanf:"audio"`

	// Discover browses mDNS for the broker when no URL is configured.
	Discover bool `koanf:"discover"`
}

// Controller holds controller settings.
type Controller struct {
	CommandTimeout        time.Duration `koanf:"command_timeout"`
	StaleAfter            time.Duration `koanf:"stale_after"`
	LivenessCheckInterval time.Duration `koanf:"liveness_check_interval"`
	HTTPAddr              string        `koanf:"http_addr"`
	Tracing               bool          `koanf:"tracing"`

	// Advertise announces the broker over mDNS under InstanceName.
	Advertise    bool   `koanf:"advertise"`
	InstanceName string `koanf:"instance_name"`
}

// Default returns the built-in defaults.
func Default() Settings {
	mqtt := bus.DefaultMQTTConfig()
	ag := agent.DefaultConfig()
	ctl := controller.DefaultConfig()
	return Settings{
		Broker: Broker{
			URL:            mqtt.BrokerURL,
			KeepAlive:      mqtt.KeepAlive,
			ConnectTimeout: mqtt.ConnectTimeout,
			Reconnect:      mqtt.Reconnect,
		},
		BaseTopic: wire.DefaultBaseTopic,
		Log:       Log{Level: "info"},
		Module: Module{
			HeartbeatInterval: ag.HeartbeatInterval,
			Capture:           CaptureSimulator,
			Audio:             wire.DefaultAudioConfig(),
		},
		Controller: Controller{
			CommandTimeout:        ctl.CommandTimeout,
			StaleAfter:            ctl.StaleAfter,
			LivenessCheckInterval: ctl.LivenessCheckInterval,
			InstanceName:          "rsaudio-controller",
		},
	}
}

// Load reads settings. path may be empty; a named file must exist.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &cfg, nil
}

// ValidateModule checks the settings an agent needs.
func (s *Settings) ValidateModule() error {
	if !wire.ValidModuleID(s.Module.ID) {
		return fmt.Errorf("%w: module.id %q", ErrInvalid, s.Module.ID)
	}
	switch s.Module.Capture {
	case CaptureSimulator, CaptureFFmpeg:
	default:
		return fmt.Errorf("%w: module.capture %q", ErrInvalid, s.Module.Capture)
	}
	if err := s.Module.Audio.Validate(); err != nil {
		return fmt.Errorf("%w: module.audio: %v", ErrInvalid, err)
	}
	return nil
}

// ValidateController checks the settings a controller needs.
func (s *Settings) ValidateController() error {
	c := s.Controller
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("%w: controller.command_timeout must be positive", ErrInvalid)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("%w: controller.stale_after must be positive", ErrInvalid)
	}
	return nil
}

// MQTT returns the bus configuration. clientID is used when none is set.
func (s *Settings) MQTT(clientID string) bus.MQTTConfig {
	cfg := bus.DefaultMQTTConfig()
	cfg.BrokerURL = s.Broker.URL
	cfg.ClientID = s.Broker.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = clientID
	}
	cfg.Username = s.Broker.Username
	cfg.Password = s.Broker.Password
	cfg.CACertFile = s.Broker.CACert
	if s.Broker.KeepAlive > 0 {
		cfg.KeepAlive = s.Broker.KeepAlive
	}
	if s.Broker.ConnectTimeout > 0 {
		cfg.ConnectTimeout = s.Broker.ConnectTimeout
	}
	cfg.Reconnect = s.Broker.Reconnect
	return cfg
}

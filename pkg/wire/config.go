package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Audio configuration defaults.
const (
	DefaultSampleRate   = 44100
	DefaultChannels     = 1
	DefaultDType        = "float32"
	DefaultRecordingDir = "recordings"

	// MaxChannels bounds the channel count a module accepts.
	MaxChannels = 32
)

// Config validation errors.
var (
	ErrInvalidSampleRate = errors.New("sample rate must be between 8000 and 192000")
	ErrInvalidChannels   = errors.New("channel count out of range")
	ErrInvalidDType      = errors.New("unsupported sample format")
	ErrEmptyRecordingDir = errors.New("recording directory must not be empty")
)

// dtypes lists the sample formats a module can capture.
var dtypes = []string{"int16", "int32", "float32"}

// AudioConfig is a module's complete capture configuration.
//
// Version increases by one every time an override is applied, so the
// controller can tell whether a snapshot reflects a given change.
type AudioConfig struct {
	Version      int    `json:"version" yaml:"version" koanf:"version"`
	SampleRate   int    `json:"samplerate" yaml:"samplerate" koanf:"samplerate"`
	Channels     int    `json:"channels" yaml:"channels" koanf:"channels"`
	Device       string `json:"device,omitempty" yaml:"device,omitempty" koanf:"device"`
	DType        string `json:"dtype" yaml:"dtype" koanf:"dtype"`
	RecordingDir string `json:"recording_dir" yaml:"recording_dir" koanf:"recording_dir"`
}

// DefaultAudioConfig returns the configuration a module starts with when no
// stored configuration exists.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		Version:      1,
		SampleRate:   DefaultSampleRate,
		Channels:     DefaultChannels,
		DType:        DefaultDType,
		RecordingDir: DefaultRecordingDir,
	}
}

// Validate checks that every field holds a usable value.
func (c AudioConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > MaxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannels, c.Channels)
	}
	if !validDType(c.DType) {
		return fmt.Errorf("%w: %q (want one of %s)", ErrInvalidDType, c.DType, strings.Join(dtypes, ", "))
	}
	if strings.TrimSpace(c.RecordingDir) == "" {
		return ErrEmptyRecordingDir
	}
	return nil
}

func validDType(s string) bool {
	for _, d := range dtypes {
		if s == d {
			return true
		}
	}
	return false
}

// ConfigOverride carries the subset of AudioConfig fields a command wants to
// change. Nil fields keep their current value.
type ConfigOverride struct {
	SampleRate   *int    `json:"samplerate,omitempty"`
	Channels     *int    `json:"channels,omitempty"`
	Device       *string `json:"device,omitempty"`
	DType        *string `json:"dtype,omitempty"`
	RecordingDir *string `json:"recording_dir,omitempty"`
}

// IsEmpty returns true if the override changes nothing.
func (o *ConfigOverride) IsEmpty() bool {
	return o == nil ||
		(o.SampleRate == nil && o.Channels == nil && o.Device == nil &&
			o.DType == nil && o.RecordingDir == nil)
}

// Apply returns base with the override's fields replaced and the version
// bumped. The result is validated; base is never modified.
func (o *ConfigOverride) Apply(base AudioConfig) (AudioConfig, error) {
	if o.IsEmpty() {
		return base, nil
	}

	next := base
	if o.SampleRate != nil {
		next.SampleRate = *o.SampleRate
	}
	if o.Channels != nil {
		next.Channels = *o.Channels
	}
	if o.Device != nil {
		next.Device = *o.Device
	}
	if o.DType != nil {
		next.DType = *o.DType
	}
	if o.RecordingDir != nil {
		next.RecordingDir = *o.RecordingDir
	}
	if err := next.Validate(); err != nil {
		return base, err
	}
	next.Version = base.Version + 1
	return next, nil
}

// ParseOverride builds an override from key=value pairs such as
// "samplerate=48000". Keys match the JSON field names.
func ParseOverride(pairs []string) (*ConfigOverride, error) {
	o := &ConfigOverride{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "samplerate", "sample_rate":
			n, err := parseInt(value)
			if err != nil {
				return nil, fmt.Errorf("samplerate: %w", err)
			}
			o.SampleRate = &n
		case "channels":
			n, err := parseInt(value)
			if err != nil {
				return nil, fmt.Errorf("channels: %w", err)
			}
			o.Channels = &n
		case "device":
			v := value
			o.Device = &v
		case "dtype":
			v := value
			o.DType = &v
		case "recording_dir":
			v := value
			o.RecordingDir = &v
		default:
			return nil, fmt.Errorf("unknown config key %q", key)
		}
	}
	return o, nil
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

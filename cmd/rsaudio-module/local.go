package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rslogger/rsaudio/internal/settings"
	"github.com/rslogger/rsaudio/pkg/capture"
	"github.com/rslogger/rsaudio/pkg/config"
	"github.com/rslogger/rsaudio/pkg/wire"
)

const listDevicesTimeout = 10 * time.Second

// runLocal handles the flags that inspect or change local state without
// joining the bus. It reports whether one of them ran.
func runLocal(s *settings.Settings, w io.Writer) (bool, error) {
	switch {
	case *listDevices:
		return true, printDevices(s, w)
	case *showConfig:
		return true, printAudioConfig(configStore(s), s.Module.Audio, w)
	case *resetConfig:
		return true, resetAudioConfig(configStore(s), s.Module.Audio, w)
	}
	return false, nil
}

func configStore(s *settings.Settings) config.Store {
	if s.Module.ConfigFile == "" {
		return nil
	}
	return config.NewFileStore(s.Module.ConfigFile, s.Module.ID)
}

func printDevices(s *settings.Settings, w io.Writer) error {
	ff, err := capture.NewFFmpeg(capture.FFmpegConfig{
		Binary:      s.Module.FFmpegBinary,
		InputFormat: s.Module.InputFormat,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), listDevicesTimeout)
	defer cancel()

	out, err := ff.ListDevices(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// printAudioConfig writes the configuration the module would start with.
func printAudioConfig(store config.Store, def wire.AudioConfig, w io.Writer) error {
	cfg, err := config.LoadOrDefault(store, def)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(cfg)
}

func resetAudioConfig(store config.Store, def wire.AudioConfig, w io.Writer) error {
	if store == nil {
		return errors.New("no config file configured (module.config_file)")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if err := store.Save(def); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintln(w, "Audio configuration reset to defaults.")
	return nil
}

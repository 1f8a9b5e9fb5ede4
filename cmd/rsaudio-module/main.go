// Command rsaudio-module runs one audio recording module.
//
// The module connects to the MQTT broker, listens on its command topic and
// publishes state, heartbeats and recording notifications for the
// controller.
//
// Usage:
//
//	rsaudio-module [flags]
//
// Flags:
//
//	-config string        Settings file (YAML)
//	-id string            Module id (overrides module.id)
//	-broker string        Broker URL (overrides broker.url)
//	-capture string       Capture backend: simulator, ffmpeg
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write every message to a .rlog file
//	-discover             Find the broker via mDNS
//	-list-devices         Print the ffmpeg input devices and exit
//	-show-config          Print the effective audio configuration and exit
//	-reset-config         Replace the stored audio configuration with the defaults and exit
//
// Examples:
//
//	# Simulated module against a local broker
//	rsaudio-module -id mic-01
//
//	# ffmpeg capture, broker found on the LAN
//	rsaudio-module -id mic-02 -capture ffmpeg -discover
//
//	# Which device names can go in audio.device?
//	rsaudio-module -list-devices
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rslogger/rsaudio/internal/settings"
	"github.com/rslogger/rsaudio/pkg/agent"
	"github.com/rslogger/rsaudio/pkg/bus"
	"github.com/rslogger/rsaudio/pkg/capture"
	"github.com/rslogger/rsaudio/pkg/config"
	"github.com/rslogger/rsaudio/pkg/discovery"
	rslog "github.com/rslogger/rsaudio/pkg/log"
)

var (
	configFile  = flag.String("config", "", "Settings file (YAML)")
	moduleID    = flag.String("id", "", "Module id (overrides module.id)")
	brokerURL   = flag.String("broker", "", "Broker URL (overrides broker.url)")
	captureKind = flag.String("capture", "", "Capture backend: simulator, ffmpeg")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Write every message to a .rlog file")
	discover    = flag.Bool("discover", false, "Find the broker via mDNS")
	listDevices = flag.Bool("list-devices", false, "Print the ffmpeg input devices and exit")
	showConfig  = flag.Bool("show-config", false, "Print the effective audio configuration and exit")
	resetConfig = flag.Bool("reset-config", false, "Replace the stored audio configuration with the defaults and exit")
)

func main() {
	flag.Parse()

	s, err := settings.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(s)

	logger := setupLogging(s.Log.Level)

	if done, err := runLocal(s, os.Stdout); done {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := s.ValidateModule(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(s, logger); err != nil {
		logger.Error("module failed", "error", err)
		os.Exit(1)
	}
}

func applyFlags(s *settings.Settings) {
	if *moduleID != "" {
		s.Module.ID = *moduleID
	}
	if *brokerURL != "" {
		s.Broker.URL = *brokerURL
	}
	if *captureKind != "" {
		s.Module.Capture = *captureKind
	}
	if *logLevel != "" {
		s.Log.Level = *logLevel
	}
	if *protocolLog != "" {
		s.Log.ProtocolLog = *protocolLog
	}
	if *discover {
		s.Module.Discover = true
	}
}

func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func run(s *settings.Settings, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("rsaudio module", "module_id", s.Module.ID, "capture", s.Module.Capture)

	if s.Module.Discover {
		if err := discoverBroker(ctx, s, logger); err != nil {
			return err
		}
	}

	capt, err := newCapture(s, logger)
	if err != nil {
		return err
	}

	cfg := agent.DefaultConfig()
	cfg.ModuleID = s.Module.ID
	cfg.BaseTopic = s.BaseTopic
	cfg.HeartbeatInterval = s.Module.HeartbeatInterval
	cfg.DisableHeartbeat = s.Module.DisableHeartbeat
	cfg.Audio = s.Module.Audio
	cfg.Logger = logger

	if s.Log.ProtocolLog != "" {
		fl, err := rslog.NewFileLogger(s.Log.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		cfg.ProtocolLogger = fl
		logger.Info("protocol logging enabled", "path", s.Log.ProtocolLog)
	}

	var store config.Store
	if s.Module.ConfigFile != "" {
		store = config.NewFileStore(s.Module.ConfigFile, s.Module.ID)
	}

	mqttCfg := s.MQTT(s.Module.ID)
	mqttCfg.Logger = logger
	client, err := bus.NewMQTTClient(mqttCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	a, err := agent.New(cfg, client, capt, store)
	if err != nil {
		return err
	}

	if err := client.Connect(ctx, true); err != nil {
		logger.Warn("broker unavailable, retrying in background", "broker", mqttCfg.BrokerURL, "error", err)
	}

	// A signal asks the agent to finish its recording; the agent loop
	// exits on its own afterwards.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		a.RequestShutdown()
	}()

	err = a.Run(context.Background())
	if errors.Is(err, agent.ErrShutdown) {
		err = nil
	}
	logger.Info("module stopped")
	return err
}

func newCapture(s *settings.Settings, logger *slog.Logger) (capture.Capture, error) {
	switch s.Module.Capture {
	case settings.CaptureFFmpeg:
		ff, err := capture.NewFFmpeg(capture.FFmpegConfig{
			Binary:      s.Module.FFmpegBinary,
			InputFormat: s.Module.InputFormat,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return ff, nil
	default:
		sim := capture.NewSimulator()
		sim.WriteFiles = true
		return sim, nil
	}
}

// discoverBroker fills in the broker URL and base topic from the first
// controller announcement found on the network.
func discoverBroker(ctx context.Context, s *settings.Settings, logger *slog.Logger) error {
	logger.Info("browsing for controller", "service", discovery.ServiceType)
	svc, err := discovery.NewBrowser(discovery.BrowserConfig{}).Find(ctx, discovery.DefaultBrowseTimeout)
	if err != nil {
		return fmt.Errorf("discover broker: %w", err)
	}
	url, err := svc.ResolveBrokerURL()
	if err != nil {
		return fmt.Errorf("discover broker: %w", err)
	}
	s.Broker.URL = url
	if svc.BaseTopic != "" {
		s.BaseTopic = svc.BaseTopic
	}
	logger.Info("found controller", "instance", svc.InstanceName, "broker", url, "base_topic", s.BaseTopic)
	return nil
}

// Command rsaudio-controller coordinates a fleet of recording modules.
//
// The controller tracks every module that reports on the bus, flags modules
// that go quiet, and sends recording commands to one module or the whole
// fleet.
//
// Usage:
//
//	rsaudio-controller [flags]
//
// Flags:
//
//	-config string        Settings file (YAML)
//	-broker string        Broker URL (overrides broker.url)
//	-http string          Serve the HTTP API on this address
//	-interactive          Enable the interactive console
//	-advertise            Announce the broker over mDNS
//	-tracing              Write OpenTelemetry spans to stderr
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write every message to a .rlog file
//
// Examples:
//
//	# Console against a local broker
//	rsaudio-controller -interactive
//
//	# Headless with the HTTP API, announcing the broker to modules
//	rsaudio-controller -http :8080 -advertise -broker tcp://10.0.0.5:1883
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rslogger/rsaudio/cmd/rsaudio-controller/interactive"
	"github.com/rslogger/rsaudio/internal/settings"
	"github.com/rslogger/rsaudio/pkg/api"
	"github.com/rslogger/rsaudio/pkg/bus"
	"github.com/rslogger/rsaudio/pkg/controller"
	"github.com/rslogger/rsaudio/pkg/discovery"
	rslog "github.com/rslogger/rsaudio/pkg/log"
	"github.com/rslogger/rsaudio/pkg/telemetry"
	"github.com/rslogger/rsaudio/pkg/version"
)

var (
	configFile  = flag.String("config", "", "Settings file (YAML)")
	brokerURL   = flag.String("broker", "", "Broker URL (overrides broker.url)")
	httpAddr    = flag.String("http", "", "Serve the HTTP API on this address")
	interact    = flag.Bool("interactive", false, "Enable the interactive console")
	advertise   = flag.Bool("advertise", false, "Announce the broker over mDNS")
	tracing     = flag.Bool("tracing", false, "Write OpenTelemetry spans to stderr")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Write every message to a .rlog file")
)

func main() {
	flag.Parse()

	s, err := settings.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(s)

	if err := s.ValidateController(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(s); err != nil {
		slog.Error("controller failed", "error", err)
		os.Exit(1)
	}
}

func applyFlags(s *settings.Settings) {
	if *brokerURL != "" {
		s.Broker.URL = *brokerURL
	}
	if *httpAddr != "" {
		s.Controller.HTTPAddr = *httpAddr
	}
	if *advertise {
		s.Controller.Advertise = true
	}
	if *tracing {
		s.Controller.Tracing = true
	}
	if *logLevel != "" {
		s.Log.Level = *logLevel
	}
	if *protocolLog != "" {
		s.Log.ProtocolLog = *protocolLog
	}
}

// logOutput lets the console take over log output once it owns the
// terminal.
type logOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *logOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *logOutput) SetOutput(w io.Writer) {
	o.mu.Lock()
	o.w = w
	o.mu.Unlock()
}

func setupLogging(level string, w io.Writer) *slog.Logger {
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
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func run(s *settings.Settings) error {
	out := &logOutput{w: os.Stderr}
	logger := setupLogging(s.Log.Level, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.Controller.Tracing {
		shutdown, err := telemetry.InitTracer("rsaudio-controller", os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = shutdown(flushCtx)
		}()
	}

	hostname, _ := os.Hostname()
	mqttCfg := s.MQTT(fmt.Sprintf("rsaudio-controller-%s-%d", hostname, os.Getpid()))

	cfg := controller.DefaultConfig()
	cfg.BaseTopic = s.BaseTopic
	cfg.CommandTimeout = s.Controller.CommandTimeout
	cfg.StaleAfter = s.Controller.StaleAfter
	cfg.LivenessCheckInterval = s.Controller.LivenessCheckInterval

	if s.Log.ProtocolLog != "" {
		fl, err := rslog.NewFileLogger(s.Log.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		cfg.ProtocolLogger = fl
	}

	cfg.Logger = logger
	mqttCfg.Logger = logger

	logger.Info("rsaudio controller", "broker", mqttCfg.BrokerURL, "base_topic", s.BaseTopic, "protocol", version.Current)

	client, err := bus.NewMQTTClient(mqttCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctl, err := controller.New(cfg, client)
	if err != nil {
		return err
	}
	ctl.OnEvent(func(ev controller.Event) {
		logger.Info("module event", "event", ev.Kind.String(), "module_id", ev.ModuleID, "error", ev.Error)
	})

	if err := client.Connect(ctx, true); err != nil {
		logger.Warn("broker unavailable, retrying in background", "error", err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("controller: %w", err)
		}
	}()

	if s.Controller.HTTPAddr != "" {
		srv := api.New(ctl, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx, s.Controller.HTTPAddr); err != nil {
				errCh <- fmt.Errorf("http api: %w", err)
			}
		}()
	}

	if s.Controller.Advertise {
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
		err := adv.Advertise(&discovery.BrokerInfo{
			InstanceName: s.Controller.InstanceName,
			BrokerURL:    mqttCfg.BrokerURL,
			BaseTopic:    ctl.Topics().Base,
			Version:      version.Current,
		})
		if err != nil {
			logger.Warn("mDNS advertising failed", "error", err)
		} else {
			logger.Info("advertising broker", "instance", s.Controller.InstanceName, "service", discovery.ServiceType)
			defer adv.Stop()
		}
	}

	if *interact {
		console, err := interactive.New(ctl)
		if err != nil {
			return err
		}
		// Redirect log output through readline to avoid interfering with input
		out.SetOutput(console.Stdout())
		ctl.OnEvent(console.OnEvent)
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancel()
	wg.Wait()
	return runErr
}

package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Supervisor errors.
var (
	ErrClosed           = errors.New("connection supervisor closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// DefaultAttemptTimeout bounds a single connect attempt.
const DefaultAttemptTimeout = 15 * time.Second

// State is the session state tracked by a Supervisor.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectFunc establishes the session. It must honor ctx.
type ConnectFunc func(ctx context.Context) error

// Hooks are invoked outside the supervisor's lock. Any may be nil.
type Hooks struct {
	// OnUp runs after every successful connect, including reconnects.
	OnUp func()

	// OnDown runs when an established session is lost.
	OnDown func(err error)

	// OnRetry runs before each reconnect delay.
	OnRetry func(attempt int, delay time.Duration)
}

// Config configures a Supervisor.
type Config struct {
	Backoff        BackoffConfig
	AttemptTimeout time.Duration
	Hooks          Hooks

	// Logger receives reconnect diagnostics. If nil, logging is disabled.
	Logger *slog.Logger
}

// Supervisor tracks a session and reconnects it after loss.
type Supervisor struct {
	mu    sync.Mutex
	state State

	connect ConnectFunc
	backoff *Backoff
	timeout time.Duration
	hooks   Hooks
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	kick   chan struct{}
}

// NewSupervisor creates a supervisor and starts its reconnect goroutine.
func NewSupervisor(connect ConnectFunc, cfg Config) *Supervisor {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		state:   StateDisconnected,
		connect: connect,
		backoff: NewBackoff(cfg.Backoff),
		timeout: cfg.AttemptTimeout,
		hooks:   cfg.Hooks,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
	}

	s.wg.Add(1)
	go s.loop()
	return s
}

// State returns the current session state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected returns true if the session is up.
func (s *Supervisor) IsConnected() bool {
	return s.State() == StateConnected
}

// Connect performs the initial connect synchronously. On failure the
// session stays disconnected; call Retry to hand it to the reconnect loop.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		s.setState(StateDisconnected)
		return err
	}
	s.up()
	return nil
}

// Retry hands a disconnected session to the reconnect loop.
func (s *Supervisor) Retry() {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateReconnecting
	s.mu.Unlock()
	s.trigger()
}

// Lost reports that an established session dropped.
func (s *Supervisor) Lost(err error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.state = StateReconnecting
	s.mu.Unlock()

	s.logger.Warn("broker session lost", "error", err)
	if s.hooks.OnDown != nil {
		s.hooks.OnDown(err)
	}
	s.trigger()
}

// Close stops reconnecting and waits for the loop to exit.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = st
	}
	s.mu.Unlock()
}

func (s *Supervisor) up() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateConnected
	s.mu.Unlock()

	s.backoff.Reset()
	if s.hooks.OnUp != nil {
		s.hooks.OnUp()
	}
}

func (s *Supervisor) trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Supervisor) loop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			s.reconnect()
		}
	}
}

func (s *Supervisor) reconnect() {
	for {
		if st := s.State(); st != StateReconnecting {
			return
		}

		delay := s.backoff.Next()
		attempt := s.backoff.Attempts()
		if s.hooks.OnRetry != nil {
			s.hooks.OnRetry(attempt, delay)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		err := s.connect(ctx)
		cancel()

		if err == nil {
			s.logger.Info("broker session restored", "attempts", attempt)
			s.up()
			return
		}
		s.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

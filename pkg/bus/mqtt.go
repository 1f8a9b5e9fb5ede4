package bus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rslogger/rsaudio/pkg/connection"
)

// MQTT defaults.
const (
	DefaultBrokerURL      = "tcp://localhost:1883"
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultQoS            = 1
)

// ErrInvalidConfig is returned for unusable MQTT settings.
var ErrInvalidConfig = errors.New("invalid mqtt configuration")

// MQTTConfig configures an MQTTClient.
type MQTTConfig struct {
	// BrokerURL is the broker address, e.g. "tcp://localhost:1883" or
	// "ssl://broker:8883".
	BrokerURL string

	// ClientID must be unique per broker. Modules use their module id.
	ClientID string

	Username string
	Password string

	// CACertFile enables TLS with the given CA bundle.
	CACertFile string

	// KeepAlive is the MQTT keepalive interval.
	KeepAlive time.Duration

	// ConnectTimeout bounds each connect attempt.
	ConnectTimeout time.Duration

	// QoS for publishes and subscriptions. Values above 1 are clamped.
	QoS byte

	// Reconnect controls the backoff between reconnect attempts.
	Reconnect connection.BackoffConfig

	// Logger receives transport diagnostics. If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultMQTTConfig returns the default configuration.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		BrokerURL:      DefaultBrokerURL,
		KeepAlive:      DefaultKeepAlive,
		ConnectTimeout: DefaultConnectTimeout,
		QoS:            DefaultQoS,
		Reconnect:      connection.DefaultBackoffConfig(),
	}
}

// Validate checks the configuration.
func (c *MQTTConfig) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("%w: broker url is required", ErrInvalidConfig)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	return nil
}

// MQTTClient is a Client backed by an MQTT broker.
//
// Paho's own reconnect is disabled; a connection.Supervisor owns the session
// so every reconnect also renews the subscriptions held by this client.
type MQTTClient struct {
	cfg    MQTTConfig
	client mqtt.Client
	sup    *connection.Supervisor
	logger *slog.Logger

	mu     sync.Mutex
	subs   []*Subscription
	closed bool
	// online is set once a session is open and its subscriptions are being
	// renewed. Subscribe reads it under mu so no subscription misses a
	// session.
	online bool

	notifier notifier
}

var _ Client = (*MQTTClient)(nil)

// NewMQTTClient creates a client. Call Connect before publishing.
func NewMQTTClient(cfg MQTTConfig) (*MQTTClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	cfg.QoS = min(cfg.QoS, 1)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "mqtt", "client_id", cfg.ClientID)

	c := &MQTTClient{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.setOnline(false)
			c.sup.Lost(err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.CACertFile != "" {
		tlsCfg, err := loadTLSConfig(cfg.CACertFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	c.client = mqtt.NewClient(opts)

	c.sup = connection.NewSupervisor(c.connect, connection.Config{
		Backoff:        cfg.Reconnect,
		AttemptTimeout: cfg.ConnectTimeout,
		Logger:         logger,
		Hooks: connection.Hooks{
			OnUp:   func() { c.notifier.notify(true) },
			OnDown: func(error) { c.notifier.notify(false) },
			OnRetry: func(attempt int, delay time.Duration) {
				logger.Info("reconnecting to broker", "attempt", attempt, "delay", delay)
			},
		},
	})

	return c, nil
}

func loadTLSConfig(caFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidConfig, caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Connect establishes the session. If the broker is unreachable and retry
// is true, the error is returned and reconnection continues in the
// background.
func (c *MQTTClient) Connect(ctx context.Context, retry bool) error {
	err := c.sup.Connect(ctx)
	if err != nil && retry {
		c.sup.Retry()
	}
	return err
}

// IsConnected reports whether the broker session is up.
func (c *MQTTClient) IsConnected() bool {
	return c.sup.IsConnected()
}

// connect is the supervisor's ConnectFunc: open the session, then renew
// every live subscription.
func (c *MQTTClient) connect(ctx context.Context) error {
	if err := wait(ctx, c.client.Connect()); err != nil {
		return fmt.Errorf("connect to %s: %w", c.cfg.BrokerURL, err)
	}

	c.mu.Lock()
	c.online = true
	subs := append([]*Subscription(nil), c.subs...)
	c.mu.Unlock()

	for _, s := range subs {
		if err := c.subscribe(ctx, s); err != nil {
			c.setOnline(false)
			c.client.Disconnect(0)
			return err
		}
	}
	c.logger.Info("connected to broker", "broker", c.cfg.BrokerURL, "subscriptions", len(subs))
	return nil
}

func (c *MQTTClient) subscribe(ctx context.Context, s *Subscription) error {
	tok := c.client.Subscribe(s.pattern, c.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		s.deliver(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	if err := wait(ctx, tok); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.pattern, err)
	}
	return nil
}

// Publish sends payload with the configured QoS.
func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if !ValidTopic(topic) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if c.isClosed() {
		return ErrClosed
	}
	if !c.sup.IsConnected() {
		return ErrNotConnected
	}
	return wait(ctx, c.client.Publish(topic, c.cfg.QoS, false, payload))
}

// Subscribe registers pattern. While disconnected the subscription is
// recorded and activated on the next connect.
func (c *MQTTClient) Subscribe(ctx context.Context, pattern string) (*Subscription, error) {
	if !ValidPattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s := newSubscription(pattern, c.logger, c.release)
	c.subs = append(c.subs, s)
	online := c.online
	c.mu.Unlock()

	if online {
		if err := c.subscribe(ctx, s); err != nil {
			if !c.isOnline() {
				// Renewed with the next session.
				return s, nil
			}
			s.Unsubscribe()
			return nil, err
		}
	}
	return s, nil
}

func (c *MQTTClient) setOnline(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}

func (c *MQTTClient) isOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *MQTTClient) release(s *Subscription) {
	c.mu.Lock()
	for i, existing := range c.subs {
		if existing == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	if c.sup.IsConnected() {
		c.client.Unsubscribe(s.pattern)
	}
}

// OnConnectionChange registers a connection callback.
func (c *MQTTClient) OnConnectionChange(fn func(connected bool)) {
	c.notifier.add(fn)
}

// Close disconnects from the broker.
func (c *MQTTClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.online = false
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	c.sup.Close()
	for _, s := range subs {
		s.once.Do(func() { close(s.done) })
	}
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	return nil
}

func (c *MQTTClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// wait blocks until tok completes or ctx ends.
func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Broker is an in-process message broker. Clients created from the same
// Broker see each other's messages.
type Broker struct {
	mu      sync.RWMutex
	clients map[*MemoryClient]struct{}

	duplicates int
	drop       func(Message) bool

	logger *slog.Logger
}

// NewBroker creates an empty broker. If logger is nil, logging is disabled.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broker{
		clients: make(map[*MemoryClient]struct{}),
		logger:  logger,
	}
}

// SetDuplicates makes the broker deliver every message n extra times.
func (b *Broker) SetDuplicates(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duplicates = max(n, 0)
}

// SetDropFilter installs a predicate; matching messages are silently lost.
// A nil filter delivers everything.
func (b *Broker) SetDropFilter(fn func(Message) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop = fn
}

// Client returns a new connected client. The name only appears in logs.
func (b *Broker) Client(name string) *MemoryClient {
	c := &MemoryClient{
		name:      name,
		broker:    b,
		connected: true,
		logger:    b.logger.With("client", name),
	}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	return c
}

func (b *Broker) route(msg Message) {
	b.mu.RLock()
	copies := 1 + b.duplicates
	drop := b.drop
	clients := make([]*MemoryClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	if drop != nil && drop(msg) {
		b.logger.Debug("message dropped by filter", "topic", msg.Topic)
		return
	}

	for i := 0; i < copies; i++ {
		for _, c := range clients {
			c.receive(msg)
		}
	}
}

func (b *Broker) remove(c *MemoryClient) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
}

// MemoryClient is a Client attached to a Broker.
type MemoryClient struct {
	name   string
	broker *Broker
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	closed    bool
	subs      []*Subscription

	notifier notifier
}

var _ Client = (*MemoryClient)(nil)

// Publish routes payload to every matching subscription on the broker.
func (c *MemoryClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidTopic(topic) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.connected:
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.broker.route(Message{Topic: topic, Payload: payload})
	return nil
}

// Subscribe registers a pattern subscription.
func (c *MemoryClient) Subscribe(ctx context.Context, pattern string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidPattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	sub := newSubscription(pattern, c.logger, c.release)
	c.subs = append(c.subs, sub)
	return sub, nil
}

// OnConnectionChange registers a connection callback.
func (c *MemoryClient) OnConnectionChange(fn func(connected bool)) {
	c.notifier.add(fn)
}

// Close detaches the client from the broker.
func (c *MemoryClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	c.broker.remove(c)
	for _, s := range subs {
		s.once.Do(func() { close(s.done) })
	}
	return nil
}

// Disconnect simulates a lost session. Messages published while
// disconnected are not delivered to this client.
func (c *MemoryClient) Disconnect() {
	c.setConnected(false)
}

// Reconnect restores a session dropped by Disconnect. Subscriptions resume.
func (c *MemoryClient) Reconnect() {
	c.setConnected(true)
}

func (c *MemoryClient) setConnected(v bool) {
	c.mu.Lock()
	if c.closed || c.connected == v {
		c.mu.Unlock()
		return
	}
	c.connected = v
	c.mu.Unlock()

	c.logger.Debug("connection changed", "connected", v)
	c.notifier.notify(v)
}

func (c *MemoryClient) receive(msg Message) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	subs := append([]*Subscription(nil), c.subs...)
	c.mu.Unlock()

	for _, s := range subs {
		if !s.closed() && Match(s.pattern, msg.Topic) {
			s.deliver(msg)
		}
	}
}

func (c *MemoryClient) release(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.subs {
		if existing == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

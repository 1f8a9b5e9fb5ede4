package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Bus errors.
var (
	ErrNotConnected   = errors.New("bus not connected")
	ErrClosed         = errors.New("bus client closed")
	ErrInvalidPattern = errors.New("invalid topic pattern")
	ErrInvalidTopic   = errors.New("invalid topic")
)

// DefaultQueueSize is the number of undelivered messages a subscription
// buffers before it starts dropping.
const DefaultQueueSize = 256

// Message is one delivery from the bus.
type Message struct {
	Topic   string
	Payload []byte
}

// Client publishes and subscribes on the bus.
type Client interface {
	// Publish sends payload on a concrete topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe starts delivery of messages matching pattern. The
	// subscription survives reconnects.
	Subscribe(ctx context.Context, pattern string) (*Subscription, error)

	// OnConnectionChange registers a callback invoked whenever the session
	// goes up or down.
	OnConnectionChange(fn func(connected bool))

	// Close ends the session and all subscriptions.
	Close() error
}

// Subscription is a lazy sequence of messages matching one pattern.
type Subscription struct {
	pattern string
	ch      chan Message
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	logger  *slog.Logger
	release func(*Subscription)
}

func newSubscription(pattern string, logger *slog.Logger, release func(*Subscription)) *Subscription {
	return &Subscription{
		pattern: pattern,
		ch:      make(chan Message, DefaultQueueSize),
		done:    make(chan struct{}),
		logger:  logger,
		release: release,
	}
}

// Pattern returns the subscribed topic pattern.
func (s *Subscription) Pattern() string {
	return s.pattern
}

// C returns the delivery channel. It is never closed; select on Done to
// detect Unsubscribe.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Done is closed once the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many messages were discarded because the consumer
// fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.release != nil {
			s.release(s)
		}
		close(s.done)
	})
}

// deliver queues msg without blocking the transport. The payload is copied
// so consumers own their bytes.
func (s *Subscription) deliver(msg Message) {
	payload := make([]byte, len(msg.Payload))
	copy(payload, msg.Payload)
	msg.Payload = payload

	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.ch <- msg:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("subscription queue full, message dropped",
			"pattern", s.pattern, "topic", msg.Topic, "dropped", n)
	}
}

// closed reports whether Unsubscribe was called.
func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// notifier fans connection changes out to registered callbacks.
type notifier struct {
	mu  sync.Mutex
	fns []func(bool)
}

func (n *notifier) add(fn func(bool)) {
	n.mu.Lock()
	n.fns = append(n.fns, fn)
	n.mu.Unlock()
}

func (n *notifier) notify(connected bool) {
	n.mu.Lock()
	fns := append([]func(bool){}, n.fns...)
	n.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

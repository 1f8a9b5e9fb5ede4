package bus

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	done chan struct{}
	err  error
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} { return t.done }
func (t *doneToken) Error() error { return t.err }

// fakePaho accepts every call. onSubscribe runs after each subscription is
// recorded.
type fakePaho struct {
	mqtt.Client

	mu          sync.Mutex
	subscribed  []string
	onSubscribe func(pattern string)
}

func (f *fakePaho) Connect() mqtt.Token { return newDoneToken(nil) }
func (f *fakePaho) IsConnected() bool { return true }
func (f *fakePaho) Disconnect(uint) {}
func (f *fakePaho) Unsubscribe(...string) mqtt.Token { return newDoneToken(nil) }

func (f *fakePaho) Subscribe(pattern string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, pattern)
	hook := f.onSubscribe
	f.mu.Unlock()
	if hook != nil {
		hook(pattern)
	}
	return newDoneToken(nil)
}

func (f *fakePaho) patterns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func TestMQTTConfig_Validate(t *testing.T) {
	cfg := DefaultMQTTConfig()
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.ClientID = "mic-1"
	assert.NoError(t, cfg.Validate())

	cfg.BrokerURL = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestNewMQTTClient_NotConnected(t *testing.T) {
	cfg := DefaultMQTTConfig()
	cfg.ClientID = "test"
	c, err := NewMQTTClient(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Publish(t.Context(), "a/b", nil), ErrNotConnected)

	// Subscriptions are accepted while offline and activated on connect.
	s, err := c.Subscribe(t.Context(), "a/+")
	require.NoError(t, err)
	assert.Equal(t, "a/+", s.Pattern())
}

func TestNewMQTTClient_MissingCA(t *testing.T) {
	cfg := DefaultMQTTConfig()
	cfg.ClientID = "test"
	cfg.CACertFile = "/nonexistent/ca.pem"
	_, err := NewMQTTClient(cfg)
	assert.Error(t, err)
}

func TestMQTTClient_SubscribeDuringRenewal(t *testing.T) {
	cfg := DefaultMQTTConfig()
	cfg.ClientID = "test"
	c, err := NewMQTTClient(cfg)
	require.NoError(t, err)
	defer c.Close()

	fake := &fakePaho{}
	c.client = fake

	_, err = c.Subscribe(t.Context(), "early/+")
	require.NoError(t, err)

	// A caller subscribes after the renewal snapshot, before the session
	// reports connected.
	var once sync.Once
	fake.onSubscribe = func(string) {
		once.Do(func() {
			_, err := c.Subscribe(t.Context(), "late/+")
			assert.NoError(t, err)
		})
	}

	require.NoError(t, c.Connect(t.Context(), false))
	assert.True(t, c.IsConnected())
	assert.ElementsMatch(t, []string{"early/+", "late/+"}, fake.patterns())
}

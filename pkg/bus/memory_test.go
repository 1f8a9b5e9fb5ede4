package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) Message {
	t.Helper()
	select {
	case m := <-s.C():
		return m
	case <-time.After(time.Second):
		t.Fatalf("no message on %s", s.Pattern())
		return Message{}
	}
}

func assertEmpty(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case m := <-s.C():
		t.Fatalf("unexpected message on %s: %s", m.Topic, m.Payload)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(nil)
	ctrl := b.Client("controller")
	mod := b.Client("mic-1")

	statuses, err := ctrl.Subscribe(ctx, "base/+/status")
	require.NoError(t, err)
	commands, err := mod.Subscribe(ctx, "base/mic-1/command")
	require.NoError(t, err)

	require.NoError(t, mod.Publish(ctx, "base/mic-1/status", []byte(`{"state":"idle"}`)))
	require.NoError(t, ctrl.Publish(ctx, "base/mic-1/command", []byte(`{"command":"status"}`)))
	require.NoError(t, ctrl.Publish(ctx, "base/mic-2/command", []byte(`{}`)))

	m := receive(t, statuses)
	assert.Equal(t, "base/mic-1/status", m.Topic)
	assert.JSONEq(t, `{"state":"idle"}`, string(m.Payload))

	m = receive(t, commands)
	assert.Equal(t, "base/mic-1/command", m.Topic)
	assertEmpty(t, commands)
}

func TestMemoryBus_Duplicates(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(nil)
	b.SetDuplicates(1)
	c := b.Client("c")

	s, err := c.Subscribe(ctx, "t/#")
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, "t/x", []byte("1")))

	receive(t, s)
	receive(t, s)
	assertEmpty(t, s)
}

func TestMemoryBus_DropFilter(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(nil)
	b.SetDropFilter(func(m Message) bool { return m.Topic == "t/lost" })
	c := b.Client("c")

	s, err := c.Subscribe(ctx, "t/+")
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, "t/lost", nil))
	require.NoError(t, c.Publish(ctx, "t/kept", nil))

	assert.Equal(t, "t/kept", receive(t, s).Topic)
	assertEmpty(t, s)
}

func TestMemoryBus_DisconnectReconnect(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(nil)
	pub := b.Client("pub")
	sub := b.Client("sub")

	var ups, downs atomic.Int32
	sub.OnConnectionChange(func(connected bool) {
		if connected {
			ups.Add(1)
		} else {
			downs.Add(1)
		}
	})

	s, err := sub.Subscribe(ctx, "t")
	require.NoError(t, err)

	sub.Disconnect()
	assert.ErrorIs(t, sub.Publish(ctx, "t", nil), ErrNotConnected)
	require.NoError(t, pub.Publish(ctx, "t", []byte("missed")))
	assertEmpty(t, s)

	sub.Reconnect()
	require.NoError(t, pub.Publish(ctx, "t", []byte("seen")))
	assert.Equal(t, "seen", string(receive(t, s).Payload))

	assert.Equal(t, int32(1), ups.Load())
	assert.Equal(t, int32(1), downs.Load())
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(nil)
	c := b.Client("c")

	s, err := c.Subscribe(ctx, "t")
	require.NoError(t, err)
	s.Unsubscribe()
	s.Unsubscribe()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed after Unsubscribe")
	}

	require.NoError(t, c.Publish(ctx, "t", nil))
	assertEmpty(t, s)
}

func TestMemoryBus_InvalidInput(t *testing.T) {
	ctx := context.Background()
	c := NewBroker(nil).Client("c")

	_, err := c.Subscribe(ctx, "a/#/b")
	assert.ErrorIs(t, err, ErrInvalidPattern)
	assert.ErrorIs(t, c.Publish(ctx, "a/+", nil), ErrInvalidTopic)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Publish(ctx, "a", nil), ErrClosed)
}

func TestSubscription_DropsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := NewBroker(nil).Client("c")
	s, err := c.Subscribe(ctx, "t")
	require.NoError(t, err)

	for i := 0; i < DefaultQueueSize+5; i++ {
		require.NoError(t, c.Publish(ctx, "t", nil))
	}
	assert.Equal(t, uint64(5), s.Dropped())
}

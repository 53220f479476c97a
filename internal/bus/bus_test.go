package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, "test.topic", func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "test.topic", []byte("hello")))

		select {
		case msg := <-got:
			assert.Equal(t, "hello", string(msg.Payload))
			assert.Equal(t, "test.topic", msg.Topic)
			assert.NotEmpty(t, msg.ID)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var other atomic.Int32
		_, err := bus.Subscribe(ctx, "other.topic", func(ctx context.Context, msg *domain.Message) error {
			other.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "isolated.topic", []byte("x")))
		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, other.Load())
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "unsub.topic", sub.Topic())

		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, bus.Publish(ctx, "unsub.topic", []byte("x")))
		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, count.Load())
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count atomic.Int32
		done := make(chan struct{}, 2)
		for i := 0; i < 2; i++ {
			_, err := bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
				count.Add(1)
				done <- struct{}{}
				return nil
			})
			require.NoError(t, err)
		}

		require.NoError(t, bus.Publish(ctx, "multi.topic", []byte("x")))
		for i := 0; i < 2; i++ {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("timeout waiting for subscribers")
			}
		}
		assert.Equal(t, int32(2), count.Load())
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, bus.Ping(ctx))
	})
}

func TestPublishJSON(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()
	ctx := context.Background()

	got := make(chan domain.EntityAuditedEvent, 1)
	_, err := bus.Subscribe(ctx, domain.TopicEntityAudited, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.EntityAuditedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		got <- ev
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, PublishJSON(ctx, bus, domain.TopicEntityAudited, domain.EntityAuditedEvent{
		RunID:       "run-1",
		EntityID:    "204554",
		Status:      domain.AuditWritten,
		FlaggedRows: 3,
	}))

	select {
	case ev := <-got:
		assert.Equal(t, "204554", ev.EntityID)
		assert.Equal(t, domain.AuditWritten, ev.Status)
		assert.Equal(t, 3, ev.FlaggedRows)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	_, err := bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.Error(t, bus.Publish(ctx, "close.topic", []byte("data")))
	assert.Error(t, bus.Ping(ctx))
	_, err = bus.Subscribe(ctx, "close.topic", nil)
	assert.Error(t, err)
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		require.NoError(t, err)
		defer b.Close()

		_, ok := b.(*ChannelBus)
		assert.True(t, ok, "expected ChannelBus for channel type")
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"})
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "quotawatch.entity.audited", Subject(domain.TopicEntityAudited))
	assert.Equal(t, "quotawatch.custom", Subject("custom"))
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	const messageCount = 100

	var received atomic.Int32
	done := make(chan struct{})
	_, err := bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		if received.Add(1) == messageCount {
			close(done)
		}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < messageCount; i++ {
		require.NoError(t, bus.Publish(ctx, "load.topic", []byte("msg")))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}

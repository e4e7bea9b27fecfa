package registry_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hearthhub/go-realtime-notify/internal/registry"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn records envelopes in arrival order.
type fakeConn struct {
	id string

	mu       sync.Mutex
	received []notify.Envelope
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, env notify.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, env)
	return nil
}

func (c *fakeConn) Received() []notify.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Envelope, len(c.received))
	copy(out, c.received)
	return out
}

type mockBackplane struct {
	mock.Mock
}

func (m *mockBackplane) Subscribe(ctx context.Context, topic notify.Topic) error {
	return m.Called(ctx, topic).Error(0)
}
func (m *mockBackplane) Unsubscribe(ctx context.Context, topic notify.Topic) error {
	return m.Called(ctx, topic).Error(0)
}
func (m *mockBackplane) Publish(ctx context.Context, env notify.Envelope) error {
	return m.Called(ctx, env).Error(0)
}

func TestRegistry_SubscribeLifecycle(t *testing.T) {
	ctx := context.Background()
	topic := notify.HouseTopic("1")

	t.Run("Subscribe is idempotent per pair", func(t *testing.T) {
		reg := registry.New(nil, newTestLogger())
		conn := &fakeConn{id: "c1"}

		first, err := reg.Subscribe(ctx, conn, topic)
		require.NoError(t, err)
		second, err := reg.Subscribe(ctx, conn, topic)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, reg.SubscriberCount(topic))

		// One event, one delivery.
		require.NoError(t, reg.Publish(ctx, notify.Envelope{Topic: topic, Event: notify.EventTaskCreated}))
		assert.Len(t, conn.Received(), 1)
	})

	t.Run("Unsubscribed connection stops receiving", func(t *testing.T) {
		reg := registry.New(nil, newTestLogger())
		conn := &fakeConn{id: "c1"}

		_, err := reg.Subscribe(ctx, conn, topic)
		require.NoError(t, err)
		require.NoError(t, reg.Unsubscribe(ctx, conn.ID(), topic))

		require.NoError(t, reg.Publish(ctx, notify.Envelope{Topic: topic, Event: notify.EventTaskUpdated}))
		assert.Empty(t, conn.Received())
	})

	t.Run("Unsubscribe of unknown pair is a no-op", func(t *testing.T) {
		reg := registry.New(nil, newTestLogger())
		require.NoError(t, reg.Unsubscribe(ctx, "ghost", topic))
	})

	t.Run("Detach removes every topic of the connection", func(t *testing.T) {
		reg := registry.New(nil, newTestLogger())
		conn := &fakeConn{id: "c1"}

		_, err := reg.Subscribe(ctx, conn, notify.HouseTopic("1"))
		require.NoError(t, err)
		_, err = reg.Subscribe(ctx, conn, notify.UserTopic("alice"))
		require.NoError(t, err)

		reg.Detach(ctx, conn.ID())

		require.NoError(t, reg.Publish(ctx, notify.Envelope{Topic: notify.HouseTopic("1"), Event: notify.EventTaskDeleted}))
		require.NoError(t, reg.Publish(ctx, notify.Envelope{Topic: notify.UserTopic("alice"), Event: notify.EventNotificationCreated}))
		assert.Empty(t, conn.Received())
	})
}

func TestRegistry_PublishOrderingPerConnection(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(nil, newTestLogger())
	topic := notify.HouseTopic("7")
	conn := &fakeConn{id: "c1"}

	_, err := reg.Subscribe(ctx, conn, topic)
	require.NoError(t, err)

	kinds := []notify.EventKind{
		notify.EventTaskCreated,
		notify.EventTaskUpdated,
		notify.EventShoppingListUpdated,
		notify.EventTaskDeleted,
	}
	for _, k := range kinds {
		require.NoError(t, reg.Publish(ctx, notify.Envelope{Topic: topic, Event: k}))
	}

	received := conn.Received()
	require.Len(t, received, len(kinds))
	for i, k := range kinds {
		assert.Equal(t, k, received[i].Event)
	}
}

func TestRegistry_BackplaneRefcount(t *testing.T) {
	ctx := context.Background()
	topic := notify.HouseTopic("9")

	t.Run("Channel opens once and closes with the last subscriber", func(t *testing.T) {
		bp := new(mockBackplane)
		reg := registry.New(bp, newTestLogger())
		connA := &fakeConn{id: "a"}
		connB := &fakeConn{id: "b"}

		// Only the first subscriber opens the channel.
		bp.On("Subscribe", mock.Anything, topic).Return(nil).Once()

		_, err := reg.Subscribe(ctx, connA, topic)
		require.NoError(t, err)
		_, err = reg.Subscribe(ctx, connB, topic)
		require.NoError(t, err)

		// Only the last unsubscribe closes it.
		bp.On("Unsubscribe", mock.Anything, topic).Return(nil).Once()

		require.NoError(t, reg.Unsubscribe(ctx, "a", topic))
		require.NoError(t, reg.Unsubscribe(ctx, "b", topic))

		bp.AssertExpectations(t)
	})

	t.Run("Publish reaches local subscribers and the backplane", func(t *testing.T) {
		bp := new(mockBackplane)
		reg := registry.New(bp, newTestLogger())
		conn := &fakeConn{id: "a"}

		bp.On("Subscribe", mock.Anything, topic).Return(nil).Once()
		_, err := reg.Subscribe(ctx, conn, topic)
		require.NoError(t, err)

		env := notify.Envelope{Topic: topic, Event: notify.EventTaskCreated}
		bp.On("Publish", mock.Anything, env).Return(nil).Once()

		require.NoError(t, reg.Publish(ctx, env))
		assert.Len(t, conn.Received(), 1)
		bp.AssertExpectations(t)
	})

	t.Run("Backplane frames from other nodes deliver locally only", func(t *testing.T) {
		bp := new(mockBackplane)
		reg := registry.New(bp, newTestLogger())
		conn := &fakeConn{id: "a"}

		bp.On("Subscribe", mock.Anything, topic).Return(nil).Once()
		_, err := reg.Subscribe(ctx, conn, topic)
		require.NoError(t, err)

		reg.DeliverLocal(ctx, notify.Envelope{Topic: topic, Event: notify.EventTaskUpdated})

		assert.Len(t, conn.Received(), 1)
		bp.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})
}

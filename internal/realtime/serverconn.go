package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hearthhub/go-realtime-notify/internal/registry"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// outboundBuffer bounds how far a slow client may fall behind before events
// are dropped for it.
const outboundBuffer = 64

// ErrSlowConsumer is returned by Send when the connection's outbound buffer
// is full. The event is dropped for this connection only.
var ErrSlowConsumer = errors.New("outbound buffer full")

// ErrConnClosed is returned by Send after the connection shut down.
var ErrConnClosed = errors.New("connection closed")

// clientFrame is what a connected client sends to manage its subscriptions.
type clientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// ServerConn adapts one upgraded websocket to the registry's Connection
// interface. All outbound writes funnel through a single writer goroutine,
// which is what gives a connection FIFO delivery per topic; Send itself only
// enqueues and never blocks.
type ServerConn struct {
	id     string
	ws     *websocket.Conn
	out    chan notify.Envelope
	done   chan struct{}
	closed sync.Once
	logger *slog.Logger
}

func NewServerConn(ws *websocket.Conn, logger *slog.Logger) *ServerConn {
	c := &ServerConn{
		id:     uuid.NewString(),
		ws:     ws,
		out:    make(chan notify.Envelope, outboundBuffer),
		done:   make(chan struct{}),
		logger: logger.With("component", "ServerConn"),
	}
	go c.writeLoop()
	return c
}

func (c *ServerConn) ID() string { return c.id }

func (c *ServerConn) Send(_ context.Context, env notify.Envelope) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- env:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Run reads subscribe/unsubscribe frames until the peer goes away, then
// detaches every subscription the connection held.
func (c *ServerConn) Run(ctx context.Context, reg *registry.Registry) {
	defer func() {
		reg.Detach(ctx, c.id)
		c.Close()
	}()

	for {
		var frame clientFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Connection read ended", "conn", c.id, "err", err)
			}
			return
		}

		topic := notify.Topic(frame.Topic)
		switch frame.Action {
		case "subscribe":
			if _, err := reg.Subscribe(ctx, c, topic); err != nil {
				c.logger.Warn("Subscribe failed", "conn", c.id, "topic", frame.Topic, "err", err)
			}
		case "unsubscribe":
			if err := reg.Unsubscribe(ctx, c.id, topic); err != nil {
				c.logger.Warn("Unsubscribe failed", "conn", c.id, "topic", frame.Topic, "err", err)
			}
		default:
			c.logger.Debug("Ignoring unknown frame action", "conn", c.id, "action", frame.Action)
		}
	}
}

func (c *ServerConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.out:
			if err := c.ws.WriteJSON(env); err != nil {
				c.logger.Debug("Write failed; closing connection", "conn", c.id, "err", err)
				c.Close()
				return
			}
		}
	}
}

func (c *ServerConn) Close() {
	c.closed.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

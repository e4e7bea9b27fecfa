package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// ClientConn is the consuming side of the websocket protocol: it dials the
// service, requests topic subscriptions, and routes inbound envelopes to
// per-topic handlers. Handlers run on the read loop goroutine, so per-topic
// envelope order is the server's publish order.
type ClientConn struct {
	ws *websocket.Conn

	mu       sync.Mutex
	handlers map[notify.Topic]func(notify.Envelope)

	writeMu sync.Mutex
	logger  *slog.Logger
}

// DialClient connects and starts the read loop.
func DialClient(ctx context.Context, url string, header http.Header, logger *slog.Logger) (*ClientConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}

	c := &ClientConn{
		ws:       ws,
		handlers: make(map[notify.Topic]func(notify.Envelope)),
		logger:   logger.With("component", "RealtimeClient"),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe registers the handler and asks the server to bind the topic.
func (c *ClientConn) Subscribe(topic notify.Topic, handler func(notify.Envelope)) error {
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()

	if err := c.writeFrame(clientFrame{Action: "subscribe", Topic: topic.String()}); err != nil {
		c.mu.Lock()
		delete(c.handlers, topic)
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe drops the handler and releases the server-side binding.
func (c *ClientConn) Unsubscribe(topic notify.Topic) error {
	c.mu.Lock()
	delete(c.handlers, topic)
	c.mu.Unlock()

	if err := c.writeFrame(clientFrame{Action: "unsubscribe", Topic: topic.String()}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

func (c *ClientConn) Close() error {
	return c.ws.Close()
}

func (c *ClientConn) writeFrame(frame clientFrame) error {
	// gorilla allows one concurrent writer only.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(frame)
}

func (c *ClientConn) readLoop() {
	for {
		var env notify.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			c.logger.Debug("Realtime read loop ended", "err", err)
			return
		}

		c.mu.Lock()
		handler := c.handlers[env.Topic]
		c.mu.Unlock()

		if handler != nil {
			handler(env)
		}
	}
}

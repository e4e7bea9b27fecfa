// Package registry tracks which live connections care about which topics and
// fans published events out to them.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// Connection is one live client attachment. Send must enqueue without
// blocking (the registry delivers under its lock to keep per-connection
// ordering); a full outbound buffer is reported as an error, not waited on.
type Connection interface {
	ID() string
	Send(ctx context.Context, env notify.Envelope) error
}

// Subscription is an active (connection, topic) pair. At most one exists per
// pair; re-subscribing returns the existing one.
type Subscription struct {
	ConnectionID string
	Topic        notify.Topic
}

// Backplane extends publishes across service instances. Subscribe/Unsubscribe
// are driven by the registry's topic refcount: the channel is opened when the
// first local subscriber appears and closed when the last one leaves.
type Backplane interface {
	Subscribe(ctx context.Context, topic notify.Topic) error
	Unsubscribe(ctx context.Context, topic notify.Topic) error
	Publish(ctx context.Context, env notify.Envelope) error
}

// Registry is the subscription table. All mutation goes through Subscribe,
// Unsubscribe and Detach, which are safe under concurrent calls; no lock is
// held across a network call (Connection.Send and Backplane publishes are
// enqueue-only).
type Registry struct {
	mu        sync.Mutex
	topics    map[notify.Topic]map[string]Connection
	byConn    map[string]map[notify.Topic]struct{}
	backplane Backplane
	logger    *slog.Logger
}

// New creates a registry. backplane may be nil for single-node deployments.
func New(backplane Backplane, logger *slog.Logger) *Registry {
	return &Registry{
		topics:    make(map[notify.Topic]map[string]Connection),
		byConn:    make(map[string]map[notify.Topic]struct{}),
		backplane: backplane,
		logger:    logger.With("component", "ChannelRegistry"),
	}
}

// Subscribe activates the (connection, topic) pair. Idempotent: if the pair
// is already active the existing subscription is returned and no transport
// work happens. The backplane channel is opened only for the first subscriber
// of a topic.
func (r *Registry) Subscribe(ctx context.Context, conn Connection, topic notify.Topic) (Subscription, error) {
	if topic == "" {
		return Subscription{}, fmt.Errorf("subscribe: empty topic")
	}

	r.mu.Lock()
	sub := Subscription{ConnectionID: conn.ID(), Topic: topic}

	if conns, ok := r.topics[topic]; ok {
		if _, present := conns[conn.ID()]; present {
			r.mu.Unlock()
			return sub, nil
		}
	}

	firstForTopic := len(r.topics[topic]) == 0
	if r.topics[topic] == nil {
		r.topics[topic] = make(map[string]Connection)
	}
	r.topics[topic][conn.ID()] = conn

	if r.byConn[conn.ID()] == nil {
		r.byConn[conn.ID()] = make(map[notify.Topic]struct{})
	}
	r.byConn[conn.ID()][topic] = struct{}{}
	r.mu.Unlock()

	if firstForTopic && r.backplane != nil {
		if err := r.backplane.Subscribe(ctx, topic); err != nil {
			// Roll back so a caller retry re-attempts the backplane bind.
			r.remove(conn.ID(), topic)
			return Subscription{}, fmt.Errorf("backplane subscribe %s: %w", topic, err)
		}
	}

	r.logger.Debug("Subscribed", "conn", conn.ID(), "topic", topic.String())
	return sub, nil
}

// Unsubscribe removes the pair. Calling it on an already-removed pair is a
// no-op. The backplane channel is closed when the last subscriber of the
// topic leaves.
func (r *Registry) Unsubscribe(ctx context.Context, connID string, topic notify.Topic) error {
	removed, lastForTopic := r.remove(connID, topic)
	if !removed {
		return nil
	}
	r.logger.Debug("Unsubscribed", "conn", connID, "topic", topic.String())

	if lastForTopic && r.backplane != nil {
		if err := r.backplane.Unsubscribe(ctx, topic); err != nil {
			return fmt.Errorf("backplane unsubscribe %s: %w", topic, err)
		}
	}
	return nil
}

// Detach removes every subscription held by a connection, typically on
// transport close.
func (r *Registry) Detach(ctx context.Context, connID string) {
	r.mu.Lock()
	topics := make([]notify.Topic, 0, len(r.byConn[connID]))
	for topic := range r.byConn[connID] {
		topics = append(topics, topic)
	}
	r.mu.Unlock()

	for _, topic := range topics {
		if err := r.Unsubscribe(ctx, connID, topic); err != nil {
			r.logger.Warn("Detach unsubscribe failed", "conn", connID, "topic", topic.String(), "err", err)
		}
	}
}

// Publish delivers the envelope to every local subscriber of its topic, then
// hands it to the backplane for other instances. No ordering is guaranteed
// across connections; within one connection envelopes arrive in publish
// order. A connection that cannot accept the envelope is skipped, not
// retried; reconnect logic owns recovery.
func (r *Registry) Publish(ctx context.Context, env notify.Envelope) error {
	r.deliverLocal(ctx, env)

	if r.backplane != nil {
		if err := r.backplane.Publish(ctx, env); err != nil {
			return fmt.Errorf("backplane publish %s: %w", env.Topic, err)
		}
	}
	return nil
}

// DeliverLocal is the backplane's entry point for envelopes that originated
// on another instance.
func (r *Registry) DeliverLocal(ctx context.Context, env notify.Envelope) {
	r.deliverLocal(ctx, env)
}

// SubscriberCount reports how many connections currently hold the topic.
func (r *Registry) SubscriberCount(topic notify.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topic])
}

func (r *Registry) deliverLocal(ctx context.Context, env notify.Envelope) {
	// Delivery happens under the lock: Send is a non-blocking enqueue, and
	// serializing it here is what keeps per-connection FIFO order when two
	// publishes race on the same topic.
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.topics[env.Topic] {
		if err := conn.Send(ctx, env); err != nil {
			r.logger.Warn("Dropping event for slow connection", "conn", conn.ID(), "topic", env.Topic.String(), "err", err)
		}
	}
}

// remove reports whether the pair existed and whether it was the topic's last.
func (r *Registry) remove(connID string, topic notify.Topic) (removed, lastForTopic bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.topics[topic]
	if !ok {
		return false, false
	}
	if _, present := conns[connID]; !present {
		return false, false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.topics, topic)
		lastForTopic = true
	}

	delete(r.byConn[connID], topic)
	if len(r.byConn[connID]) == 0 {
		delete(r.byConn, connID)
	}
	return true, lastForTopic
}

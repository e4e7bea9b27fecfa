// Package realtime carries events between the service and live websocket
// clients: the topic publisher on the server side, the registry-facing server
// connection, and the dialing client connection.
package realtime

import (
	"context"
	"log/slog"

	"github.com/hearthhub/go-realtime-notify/internal/registry"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// TopicPublisher is the RealtimeTopic delivery provider. Publishing is
// best-effort and at-most-once: with no live subscriber the event is simply
// dropped, because durability belongs to the persisted resources clients
// refetch on reconnect.
type TopicPublisher struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewTopicPublisher(reg *registry.Registry, logger *slog.Logger) *TopicPublisher {
	return &TopicPublisher{
		registry: reg,
		logger:   logger.With("component", "RealtimeTopic"),
	}
}

func (p *TopicPublisher) Publish(ctx context.Context, env notify.Envelope) error {
	if p.registry.SubscriberCount(env.Topic) == 0 {
		p.logger.Debug("No local subscribers for topic", "topic", env.Topic.String(), "event", string(env.Event))
	}
	return p.registry.Publish(ctx, env)
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub/v2"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// PubsubCleanupSink publishes invalid-target outcomes to a Pub/Sub topic the
// upstream producer consumes. Deactivating the dead token or bounced address
// is the producer's job; this service performs no storage writes.
type PubsubCleanupSink struct {
	publisher *pubsub.Publisher
	logger    *slog.Logger
}

func NewPubsubCleanupSink(client *pubsub.Client, topicID string, logger *slog.Logger) *PubsubCleanupSink {
	return &PubsubCleanupSink{
		publisher: client.Publisher(topicID),
		logger:    logger.With("component", "CleanupSink"),
	}
}

// Flag publishes the outcomes as one JSON message and waits for the server
// ack, so a lost cleanup signal is at least visible in the logs.
func (s *PubsubCleanupSink) Flag(ctx context.Context, outcomes []notify.DeliveryOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	payload, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("marshal cleanup outcomes: %w", err)
	}

	result := s.publisher.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish cleanup outcomes: %w", err)
	}
	s.logger.Debug("Published invalid-target outcomes", "count", len(outcomes))
	return nil
}

func (s *PubsubCleanupSink) Stop() {
	s.publisher.Stop()
}

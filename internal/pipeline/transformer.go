// Package pipeline adapts the event stream consumed from Pub/Sub into
// dispatcher invocations.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// EventTransformer unmarshals a raw message payload into a NotificationEvent.
// A payload that is not valid JSON for the event shape is skipped so the
// StreamingService can route it to the dead-letter topic; structural
// validation beyond JSON shape belongs to the dispatcher.
func EventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notify.NotificationEvent, bool, error) {
	var event notify.NotificationEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal notification event from message %s: %w", msg.ID, err)
	}
	if event.ID == "" {
		event.ID = msg.ID
	}
	return &event, false, nil
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// NewProcessor builds the stream stage that hands each consumed event to the
// dispatcher and routes the aggregated outcomes.
//
// Error handling decides the message's fate:
//   - a malformed event is logged and acked (returning it for retry would
//     poison the subscription),
//   - a delivery error is returned so the message is nacked and redelivered,
//   - invalid-target outcomes are flagged to the cleanup sink so the producer
//     can deactivate dead tokens; a sink failure is logged, never retried,
//     because the delivery itself already happened.
func NewProcessor(
	dispatcher dispatch.Dispatcher,
	cleanup dispatch.CleanupSink,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[notify.NotificationEvent] {
	procBase := logger.With("component", "EventProcessor")

	return func(ctx context.Context, original messagepipeline.Message, event *notify.NotificationEvent) error {
		procLogger := procBase.With(
			"event", string(event.Kind),
			"topic", event.Topic.String(),
			"pubsub_msg_id", original.ID,
		)

		outcomes, err := dispatcher.Dispatch(ctx, *event)
		if err != nil {
			var malformed *notify.MalformedEventError
			if errors.As(err, &malformed) {
				procLogger.Error("Dropping malformed event", "reason", malformed.Reason)
				return nil
			}
			procLogger.Error("Dispatch failed", "err", err)
			return err
		}

		if invalid := invalidTargets(outcomes); len(invalid) > 0 && cleanup != nil {
			procLogger.Info("Flagging invalid targets for cleanup", "count", len(invalid))
			if err := cleanup.Flag(ctx, invalid); err != nil {
				procLogger.Warn("Failed to flag invalid targets", "err", err)
			}
		}

		procLogger.Info("Event dispatched", "outcomes", len(outcomes))
		return nil
	}
}

func invalidTargets(outcomes []notify.DeliveryOutcome) []notify.DeliveryOutcome {
	var invalid []notify.DeliveryOutcome
	for _, out := range outcomes {
		if out.Status == notify.StatusInvalidTarget {
			invalid = append(invalid, out)
		}
	}
	return invalid
}

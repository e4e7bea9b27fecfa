// Package fcm sends push notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Sender struct {
	client MessagingClient
	logger *slog.Logger
}

// NewSender accepts the concrete client but stores it as the interface.
// *messaging.Client satisfies MessagingClient as-is.
func NewSender(client MessagingClient, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		logger: logger.With("component", "FCMSender"),
	}
}

// Dispatch sends one logical message to every token via the multicast
// endpoint and maps the batch response into per-token outcomes.
// Unregistered or malformed tokens come back as invalid-target so the caller
// can flag them for cleanup; anything else failing is transient.
func (s *Sender) Dispatch(ctx context.Context, tokens []notify.PushToken, msg dispatch.PushMessage) ([]notify.DeliveryOutcome, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	raw := make([]string, len(tokens))
	for i, t := range tokens {
		raw[i] = t.Token
	}

	multicast := &messaging.MulticastMessage{
		Tokens: raw,
		Data:   msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}

	br, err := s.client.SendEachForMulticast(ctx, multicast)
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			// The whole batch was rejected as garbage; retrying won't help.
			s.logger.Error("FCM rejected batch as InvalidArgument", "err", err)
			return outcomesForAll(tokens, notify.StatusFailed, "invalid-argument"), nil
		}
		return nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	outcomes := make([]notify.DeliveryOutcome, 0, len(tokens))
	for idx, resp := range br.Responses {
		out := notify.DeliveryOutcome{
			Target:   notify.PushTarget(tokens[idx]),
			Provider: notify.ProviderPush,
		}
		switch {
		case resp.Success:
			out.Status = notify.StatusSent
		case messaging.IsRegistrationTokenNotRegistered(resp.Error) || messaging.IsInvalidArgument(resp.Error):
			out.Status = notify.StatusInvalidTarget
			out.Detail = "unregistered"
		default:
			out.Status = notify.StatusFailed
			out.Detail = "transient"
		}
		outcomes = append(outcomes, out)
	}

	s.logger.Debug("FCM batch dispatched", "success", br.SuccessCount, "failure", br.FailureCount)
	return outcomes, nil
}

func outcomesForAll(tokens []notify.PushToken, status notify.DeliveryStatus, detail string) []notify.DeliveryOutcome {
	outcomes := make([]notify.DeliveryOutcome, len(tokens))
	for i, t := range tokens {
		outcomes[i] = notify.DeliveryOutcome{
			Target:   notify.PushTarget(t),
			Provider: notify.ProviderPush,
			Status:   status,
			Detail:   detail,
		}
	}
	return outcomes
}

// Package apns sends push notifications through the Apple Push Notification
// service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file.
	P8KeyContent string
}

type Sender struct {
	client APNSClient
	topic  string // the app bundle ID
	logger *slog.Logger
}

// NewSender parses the P8 key immediately to fail fast on startup if the
// credentials are bad.
func NewSender(cfg Config, logger *slog.Logger) (*Sender, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})

	return NewSenderWithClient(client, cfg.BundleID, logger), nil
}

// NewSenderWithClient injects an already-built client, used by tests.
func NewSenderWithClient(client APNSClient, bundleID string, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		topic:  bundleID,
		logger: logger.With("component", "APNSSender"),
	}
}

// Dispatch sends to each token in turn. The APNs HTTP/2 API is unary, so
// there is no multicast endpoint; serial per-user sends are fine inside a
// scaled pipeline worker.
func (s *Sender) Dispatch(ctx context.Context, tokens []notify.PushToken, msg dispatch.PushMessage) ([]notify.DeliveryOutcome, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	builder := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body)
	for k, v := range msg.Data {
		builder.Custom(k, v)
	}

	outcomes := make([]notify.DeliveryOutcome, 0, len(tokens))
	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("apns dispatch aborted: %w", err)
		}

		out := notify.DeliveryOutcome{
			Target:   notify.PushTarget(deviceToken),
			Provider: notify.ProviderPush,
		}

		res, err := s.client.Push(&apns2.Notification{
			DeviceToken: deviceToken.Token,
			Topic:       s.topic,
			Payload:     builder,
		})
		if err != nil {
			s.logger.Error("APNs transport failed", "err", err)
			out.Status = notify.StatusFailed
			out.Detail = "transient"
			outcomes = append(outcomes, out)
			continue
		}

		if res.Sent() {
			out.Status = notify.StatusSent
			outcomes = append(outcomes, out)
			continue
		}

		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			out.Status = notify.StatusInvalidTarget
			out.Detail = res.Reason
		default:
			// The token might be fine and our configuration wrong, so this is
			// not reported as an invalid target.
			s.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
			out.Status = notify.StatusFailed
			out.Detail = res.Reason
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, nil
}

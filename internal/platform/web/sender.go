// Package web sends browser push notifications over the VAPID web-push
// protocol.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// Config carries the VAPID key pair and contact address.
type Config struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type Sender struct {
	subscriber string
	privateKey string
	publicKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSender(cfg Config, logger *slog.Logger) *Sender {
	return &Sender{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		httpClient: &http.Client{},
		logger:     logger.With("component", "WebPushSender"),
	}
}

// Dispatch posts the payload to each subscription endpoint. 404/410 means the
// subscription is gone and comes back as invalid-target; other failures are
// transient and the endpoint is kept.
func (s *Sender) Dispatch(ctx context.Context, tokens []notify.PushToken, msg dispatch.PushMessage) ([]notify.DeliveryOutcome, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	payloadBytes, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": msg.Title,
			"body":  msg.Body,
		},
		"data": msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	outcomes := make([]notify.DeliveryOutcome, 0, len(tokens))
	for _, t := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("webpush dispatch aborted: %w", err)
		}

		out := notify.DeliveryOutcome{
			Target:   notify.PushTarget(t),
			Provider: notify.ProviderPush,
		}

		sub := &webpush.Subscription{Endpoint: t.Token}
		if t.WebKeys != nil {
			sub.Keys = webpush.Keys{P256dh: t.WebKeys.P256dh, Auth: t.WebKeys.Auth}
		}

		resp, err := webpush.SendNotification(payloadBytes, sub, &webpush.Options{
			Subscriber:      s.subscriber,
			VAPIDPublicKey:  s.publicKey,
			VAPIDPrivateKey: s.privateKey,
			TTL:             60,
			HTTPClient:      s.httpClient,
		})
		if err != nil {
			// Transport error (DNS, timeout): keep the endpoint.
			s.logger.Error("WebPush transport error", "endpoint", t.Token, "err", err)
			out.Status = notify.StatusFailed
			out.Detail = "transient"
			outcomes = append(outcomes, out)
			continue
		}
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			out.Status = notify.StatusSent
		case http.StatusGone, http.StatusNotFound:
			out.Status = notify.StatusInvalidTarget
			out.Detail = fmt.Sprintf("endpoint gone (%d)", resp.StatusCode)
		default:
			s.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", t.Token)
			out.Status = notify.StatusFailed
			out.Detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, nil
}

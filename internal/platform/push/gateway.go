// Package push routes device tokens to the platform sender that can deliver
// them (FCM, APNS, web-push) and aggregates the results.
package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// Sender is one platform transport. A returned error means the whole batch
// failed at the transport level; per-token results live in the outcomes.
type Sender interface {
	Dispatch(ctx context.Context, tokens []notify.PushToken, msg dispatch.PushMessage) ([]notify.DeliveryOutcome, error)
}

// Gateway fans one logical message out to heterogeneous push platforms.
// With no configured platforms it degrades to a deterministic no-op that
// fails every target; that state is logged once here, not per call.
type Gateway struct {
	senders map[notify.PushPlatform]Sender
	logger  *slog.Logger
}

func NewGateway(senders map[notify.PushPlatform]Sender, logger *slog.Logger) *Gateway {
	logger = logger.With("component", "PushGateway")
	if len(senders) == 0 {
		logger.Warn("No push platforms configured; every push send will fail")
	}
	return &Gateway{senders: senders, logger: logger}
}

// Send delivers to a single token and reports bare success.
func (g *Gateway) Send(ctx context.Context, token notify.PushToken, msg dispatch.PushMessage) bool {
	receipt := g.SendMulticast(ctx, []notify.PushToken{token}, msg)
	return receipt.SuccessCount == 1
}

// SendMulticast groups tokens by platform, dispatches each group through its
// sender, and folds everything into one receipt with per-target outcomes.
func (g *Gateway) SendMulticast(ctx context.Context, tokens []notify.PushToken, msg dispatch.PushMessage) dispatch.PushReceipt {
	var receipt dispatch.PushReceipt
	if len(tokens) == 0 {
		return receipt
	}

	if len(g.senders) == 0 {
		receipt.Outcomes = failAll(tokens, "configuration-missing")
		receipt.FailureCount = len(tokens)
		return receipt
	}

	byPlatform := make(map[notify.PushPlatform][]notify.PushToken)
	for _, t := range tokens {
		byPlatform[t.Platform] = append(byPlatform[t.Platform], t)
	}

	for platform, group := range byPlatform {
		sender, ok := g.senders[platform]
		if !ok {
			g.logger.Debug("No sender for platform", "platform", string(platform), "tokens", len(group))
			receipt.Outcomes = append(receipt.Outcomes, failAll(group, "configuration-missing")...)
			continue
		}

		outcomes, err := sender.Dispatch(ctx, group, msg)
		if err != nil {
			detail := "transient"
			if errors.Is(err, context.DeadlineExceeded) {
				detail = "timeout"
			}
			g.logger.Error("Platform dispatch failed", "platform", string(platform), "err", err)
			receipt.Outcomes = append(receipt.Outcomes, failAll(group, detail)...)
			continue
		}
		receipt.Outcomes = append(receipt.Outcomes, outcomes...)
	}

	for _, out := range receipt.Outcomes {
		if out.Status == notify.StatusSent {
			receipt.SuccessCount++
		} else {
			receipt.FailureCount++
		}
	}
	return receipt
}

func failAll(tokens []notify.PushToken, detail string) []notify.DeliveryOutcome {
	outcomes := make([]notify.DeliveryOutcome, len(tokens))
	for i, t := range tokens {
		outcomes[i] = notify.DeliveryOutcome{
			Target:   notify.PushTarget(t),
			Provider: notify.ProviderPush,
			Status:   notify.StatusFailed,
			Detail:   detail,
		}
	}
	return outcomes
}

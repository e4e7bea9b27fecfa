// Package dispatch defines the public contracts between the notification
// dispatcher and its pluggable delivery providers.
package dispatch

import (
	"context"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// Dispatcher accepts one fully-formed event, fans it out to every applicable
// provider, and returns the aggregated per-target outcomes. Only a malformed
// event or a failed-but-configured email send surface as a returned error;
// all other failures are reported inside the outcome list.
type Dispatcher interface {
	Dispatch(ctx context.Context, event notify.NotificationEvent) ([]notify.DeliveryOutcome, error)
}

// RealtimePublisher pushes an event to every live connection subscribed to a
// topic. Delivery is best-effort and at-most-once: with no subscribers the
// event is dropped, never buffered.
type RealtimePublisher interface {
	Publish(ctx context.Context, env notify.Envelope) error
}

// PushMessage is the single logical payload sent to every device token.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushReceipt aggregates a multi-target push send.
type PushReceipt struct {
	SuccessCount int
	FailureCount int
	Outcomes     []notify.DeliveryOutcome
}

// PushGateway sends one logical message to device tokens, batched where the
// underlying transport supports multicast. An unconfigured gateway is a
// deterministic no-op that fails every target.
type PushGateway interface {
	// Send delivers to a single token and reports bare success.
	Send(ctx context.Context, token notify.PushToken, msg PushMessage) bool

	// SendMulticast delivers to many tokens concurrently and reports counts
	// plus a per-target outcome list.
	SendMulticast(ctx context.Context, tokens []notify.PushToken, msg PushMessage) PushReceipt
}

// EmailSender renders and sends transactional invitation mail through
// whichever backend the deployment selected.
type EmailSender interface {
	// SendInvitationEmail fails with *notify.DeliveryError when the configured
	// backend errors, and with notify.ErrConfigurationMissing when no backend
	// is configured at all. An unsent invitation is never reported as success.
	SendInvitationEmail(ctx context.Context, inv notify.Invitation) error

	// TestConnection is a lightweight capability probe for health checks. It
	// never sends mail.
	TestConnection(ctx context.Context) bool
}

// CleanupSink receives invalid-target outcomes so the owner of the targets
// (the upstream producer) can deactivate dead tokens and bounced addresses.
// This core performs no storage writes of its own.
type CleanupSink interface {
	Flag(ctx context.Context, outcomes []notify.DeliveryOutcome) error
}

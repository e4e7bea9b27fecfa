// Package dispatch implements the notification dispatcher: one event in,
// concurrent provider fan-out, aggregated per-target outcomes back.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	pubdispatch "github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// Config bounds each provider call so a stalled upstream cannot block the
// aggregate dispatch. The exact values are a deployment decision.
type Config struct {
	PushTimeout  time.Duration
	EmailTimeout time.Duration
}

const (
	defaultPushTimeout  = 10 * time.Second
	defaultEmailTimeout = 15 * time.Second
)

// Dispatcher routes one event to the providers its targets call for, runs
// them concurrently, and aggregates outcomes. It never retries: each provider
// is attempted exactly once per invocation, and a dispatch is not cancellable
// mid-flight; once initiated every applicable provider runs to completion or
// timeout so delivery state is never ambiguous.
type Dispatcher struct {
	realtime pubdispatch.RealtimePublisher
	push     pubdispatch.PushGateway
	email    pubdispatch.EmailSender
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
}

// New builds a dispatcher. Any provider may be nil, meaning "not configured":
// its sends fail deterministically in the outcome list rather than raising.
func New(realtime pubdispatch.RealtimePublisher, push pubdispatch.PushGateway, email pubdispatch.EmailSender, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = defaultPushTimeout
	}
	if cfg.EmailTimeout <= 0 {
		cfg.EmailTimeout = defaultEmailTimeout
	}
	return &Dispatcher{
		realtime: realtime,
		push:     push,
		email:    email,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger.With("component", "NotificationDispatcher"),
	}
}

// Dispatch runs the Received -> Routing -> Sending -> Aggregated state walk
// for one event. A malformed event fails fast before any provider is touched.
// Per-provider failures are isolated in the outcome list; only an email
// DeliveryError additionally propagates, because an unsent invitation must
// not look like success to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, event notify.NotificationEvent) ([]notify.DeliveryOutcome, error) {
	if err := d.validateEvent(event); err != nil {
		return nil, err
	}

	pushTokens, emails := partitionTargets(event.Targets)

	var (
		wg               sync.WaitGroup
		realtimeOutcomes []notify.DeliveryOutcome
		pushOutcomes     []notify.DeliveryOutcome
		emailOutcomes    []notify.DeliveryOutcome
		emailErrs        []error
	)

	// Realtime is inherent to the event's topic rather than enumerated as a
	// target; the other providers run only when matching targets are present.
	wg.Add(1)
	go func() {
		defer wg.Done()
		realtimeOutcomes = d.sendRealtime(ctx, event)
	}()

	if len(pushTokens) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pushOutcomes = d.sendPush(ctx, event, pushTokens)
		}()
	}

	if len(emails) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emailOutcomes, emailErrs = d.sendEmails(ctx, event, emails)
		}()
	}

	wg.Wait()

	outcomes := make([]notify.DeliveryOutcome, 0, len(realtimeOutcomes)+len(pushOutcomes)+len(emailOutcomes))
	outcomes = append(outcomes, realtimeOutcomes...)
	outcomes = append(outcomes, pushOutcomes...)
	outcomes = append(outcomes, emailOutcomes...)

	d.logger.Info("Dispatch aggregated",
		"event", string(event.Kind),
		"topic", event.Topic.String(),
		"outcomes", len(outcomes),
		"invalid_targets", countStatus(outcomes, notify.StatusInvalidTarget),
	)
	return outcomes, errors.Join(emailErrs...)
}

func (d *Dispatcher) validateEvent(event notify.NotificationEvent) error {
	if err := d.validate.Struct(event); err != nil {
		return &notify.MalformedEventError{Reason: err.Error()}
	}
	for i, target := range event.Targets {
		switch target.Kind {
		case notify.TargetPush:
			if target.Push == nil {
				return &notify.MalformedEventError{Reason: fmt.Sprintf("target %d: push target without token", i)}
			}
		case notify.TargetEmail:
			if target.Email == "" {
				return &notify.MalformedEventError{Reason: fmt.Sprintf("target %d: email target without address", i)}
			}
		}
	}
	return nil
}

func (d *Dispatcher) sendRealtime(ctx context.Context, event notify.NotificationEvent) []notify.DeliveryOutcome {
	out := notify.DeliveryOutcome{
		Target:   notify.RealtimeTarget(""),
		Provider: notify.ProviderRealtime,
	}

	if d.realtime == nil {
		out.Status = notify.StatusFailed
		out.Detail = "configuration-missing"
		return []notify.DeliveryOutcome{out}
	}

	env := notify.Envelope{Topic: event.Topic, Event: event.Kind, Payload: event.Payload}
	if err := d.realtime.Publish(ctx, env); err != nil {
		d.logger.Error("Realtime publish failed", "topic", event.Topic.String(), "err", err)
		out.Status = notify.StatusFailed
		out.Detail = "transient"
		return []notify.DeliveryOutcome{out}
	}

	out.Status = notify.StatusSent
	return []notify.DeliveryOutcome{out}
}

func (d *Dispatcher) sendPush(ctx context.Context, event notify.NotificationEvent, tokens []notify.PushToken) []notify.DeliveryOutcome {
	if d.push == nil {
		outcomes := make([]notify.DeliveryOutcome, len(tokens))
		for i, t := range tokens {
			outcomes[i] = notify.DeliveryOutcome{
				Target:   notify.PushTarget(t),
				Provider: notify.ProviderPush,
				Status:   notify.StatusFailed,
				Detail:   "configuration-missing",
			}
		}
		return outcomes
	}

	title, body := event.NotificationContent()
	msg := pubdispatch.PushMessage{
		Title: title,
		Body:  body,
		Data:  map[string]string{"kind": string(event.Kind), "topic": event.Topic.String()},
	}

	cctx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
	defer cancel()
	receipt := d.push.SendMulticast(cctx, tokens, msg)
	return receipt.Outcomes
}

func (d *Dispatcher) sendEmails(ctx context.Context, event notify.NotificationEvent, addresses []string) ([]notify.DeliveryOutcome, []error) {
	outcomes := make([]notify.DeliveryOutcome, 0, len(addresses))
	var errs []error

	for _, address := range addresses {
		out := notify.DeliveryOutcome{
			Target:   notify.EmailTarget(address),
			Provider: notify.ProviderEmail,
		}

		if d.email == nil {
			out.Status = notify.StatusFailed
			out.Detail = "configuration-missing"
			outcomes = append(outcomes, out)
			continue
		}

		inv := notify.InvitationFromEvent(event, address)

		cctx, cancel := context.WithTimeout(ctx, d.cfg.EmailTimeout)
		err := d.email.SendInvitationEmail(cctx, inv)
		cancel()

		switch {
		case err == nil:
			out.Status = notify.StatusSent
		case errors.Is(err, notify.ErrConfigurationMissing):
			// Not configured is recoverable: reported in the outcome,
			// never raised.
			out.Status = notify.StatusFailed
			out.Detail = "configuration-missing"
		case errors.Is(err, context.DeadlineExceeded):
			out.Status = notify.StatusFailed
			out.Detail = "timeout"
			errs = append(errs, &notify.DeliveryError{Provider: notify.ProviderEmail, Err: err})
		default:
			out.Status = notify.StatusFailed
			out.Detail = err.Error()
			errs = append(errs, err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, errs
}

func partitionTargets(targets []notify.DeliveryTarget) (pushTokens []notify.PushToken, emails []string) {
	for _, target := range targets {
		switch target.Kind {
		case notify.TargetPush:
			if target.Push != nil {
				pushTokens = append(pushTokens, *target.Push)
			}
		case notify.TargetEmail:
			if target.Email != "" {
				emails = append(emails, target.Email)
			}
		}
	}
	return pushTokens, emails
}

func countStatus(outcomes []notify.DeliveryOutcome, status notify.DeliveryStatus) int {
	n := 0
	for _, out := range outcomes {
		if out.Status == status {
			n++
		}
	}
	return n
}

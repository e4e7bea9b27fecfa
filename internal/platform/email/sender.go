// Package email renders and sends transactional invitation mail through one
// of two interchangeable backends: a transactional HTTP API (production) or a
// local SMTP relay (development and testing).
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// Message is one rendered mail ready for a backend.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Backend is the deployment-selected transport strategy. It is chosen once at
// startup and injected; call sites never branch on deployment mode.
type Backend interface {
	Name() string
	Send(ctx context.Context, msg Message) error
	// Probe is a lightweight capability check that never sends mail.
	Probe(ctx context.Context) bool
}

// Config selects and parameterizes the backend. Mode "api" and "relay" force
// a backend; empty mode picks whichever one is configured, preferring the API.
type Config struct {
	Mode string

	APIBaseURL  string
	APIKey      string
	FromAddress string

	RelayHost string
	RelayPort int
}

type Sender struct {
	backend Backend // nil when neither backend is configured
	logger  *slog.Logger
}

// NewSender resolves the backend from config. A missing configuration is
// logged once here and only raises later, when a send is actually attempted.
func NewSender(cfg Config, logger *slog.Logger) *Sender {
	logger = logger.With("component", "EmailSender")

	backend := selectBackend(cfg)
	if backend == nil {
		logger.Warn("No email backend configured; invitation sends will fail")
	} else {
		logger.Info("Email backend selected", "backend", backend.Name())
	}
	return &Sender{backend: backend, logger: logger}
}

// NewSenderWithBackend injects a prebuilt backend, used by tests.
func NewSenderWithBackend(backend Backend, logger *slog.Logger) *Sender {
	return &Sender{backend: backend, logger: logger.With("component", "EmailSender")}
}

func selectBackend(cfg Config) Backend {
	apiConfigured := cfg.APIKey != "" && cfg.FromAddress != ""
	relayConfigured := cfg.RelayHost != ""

	switch cfg.Mode {
	case "api":
		if apiConfigured {
			return newAPIBackend(cfg)
		}
		return nil
	case "relay":
		if relayConfigured {
			return newRelayBackend(cfg)
		}
		return nil
	default:
		if apiConfigured {
			return newAPIBackend(cfg)
		}
		if relayConfigured {
			return newRelayBackend(cfg)
		}
		return nil
	}
}

// SendInvitationEmail renders the invitation and hands it to the backend.
// An unsent invitation blocks a user-facing workflow, so failures always
// surface: notify.ErrConfigurationMissing when no backend exists, a
// *notify.DeliveryError when the configured backend's send errors.
func (s *Sender) SendInvitationEmail(ctx context.Context, inv notify.Invitation) error {
	if s.backend == nil {
		return fmt.Errorf("email sender: %w", notify.ErrConfigurationMissing)
	}

	subject, text, html, err := renderInvitation(inv)
	if err != nil {
		return &notify.DeliveryError{Provider: notify.ProviderEmail, Err: err}
	}

	msg := Message{To: inv.Email, Subject: subject, Text: text, HTML: html}
	if err := s.backend.Send(ctx, msg); err != nil {
		s.logger.Error("Invitation send failed", "backend", s.backend.Name(), "to", inv.Email, "err", err)
		return &notify.DeliveryError{Provider: notify.ProviderEmail, Err: err}
	}

	s.logger.Info("Invitation sent", "backend", s.backend.Name(), "to", inv.Email, "house", inv.HouseName)
	return nil
}

// TestConnection probes the selected backend without sending mail. Used by
// health checks, never on the hot path.
func (s *Sender) TestConnection(ctx context.Context) bool {
	if s.backend == nil {
		return false
	}
	return s.backend.Probe(ctx)
}

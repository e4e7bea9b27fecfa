package notify

import (
	"errors"
	"fmt"
)

// Sentinel errors for the non-fatal delivery failure classes. Providers wrap
// these so callers can classify outcomes with errors.Is.
var (
	// ErrConfigurationMissing marks a provider that was never configured.
	// Logged once at startup; sends against it fail deterministically.
	ErrConfigurationMissing = errors.New("provider configuration missing")

	// ErrInvalidTarget marks a destination the provider reports as permanently
	// unusable (expired token, gone subscription, bounced address). The caller
	// should stop using the target and remove it from storage.
	ErrInvalidTarget = errors.New("delivery target no longer valid")

	// ErrTransientProvider marks a network or provider-side failure that is
	// safe to retry later. The core itself never retries.
	ErrTransientProvider = errors.New("transient provider failure")
)

// MalformedEventError reports a caller programming error: an event missing
// required fields. It is raised before any provider is invoked.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return "malformed notification event: " + e.Reason
}

// DeliveryError reports a send that failed even though the provider was
// configured. The email path has no fallback, so this propagates to the
// caller rather than being folded into the outcome list.
type DeliveryError struct {
	Provider Provider
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Provider, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

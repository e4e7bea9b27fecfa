// Package notify contains the public domain model for the real-time
// notification core: topics, events, delivery targets and per-target
// delivery outcomes.
package notify

import (
	"fmt"
	"time"
)

// Topic is a routing key for publish/subscribe delivery. Topics are scoped to
// a house or a user and carry no state of their own.
type Topic string

// HouseTopic returns the topic all members of a house listen on.
func HouseTopic(houseID string) Topic {
	return Topic("house-" + houseID)
}

// UserTopic returns the personal topic for a single user.
func UserTopic(userID string) Topic {
	return Topic("user-" + userID)
}

func (t Topic) String() string { return string(t) }

// EventKind is the closed set of event names bound per topic.
type EventKind string

const (
	EventTaskCreated         EventKind = "task-created"
	EventTaskUpdated         EventKind = "task-updated"
	EventTaskDeleted         EventKind = "task-deleted"
	EventShoppingListUpdated EventKind = "shopping-list-updated"
	EventNotificationCreated EventKind = "notification-created"
	EventInvitationCreated   EventKind = "invitation-created"
)

// TargetKind discriminates the DeliveryTarget union.
type TargetKind string

const (
	TargetRealtime TargetKind = "realtime"
	TargetPush     TargetKind = "push"
	TargetEmail    TargetKind = "email"
)

// PushPlatform selects which push sender a token belongs to.
type PushPlatform string

const (
	PlatformFCM     PushPlatform = "fcm"
	PlatformAPNS    PushPlatform = "apns"
	PlatformWebPush PushPlatform = "webpush"
)

// WebPushKeys are the client encryption keys of a VAPID subscription,
// base64url-encoded as the browser hands them out.
type WebPushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushToken is one registered device destination. For web-push the token is
// the subscription endpoint URL and WebKeys must be set.
type PushToken struct {
	Platform PushPlatform `json:"platform" validate:"required,oneof=fcm apns webpush"`
	Token    string       `json:"token" validate:"required"`
	WebKeys  *WebPushKeys `json:"web_keys,omitempty"`
}

// DeliveryTarget is a tagged union over the destinations a single event may
// carry: a live connection, a push token, or an email address. Exactly the
// field matching Kind is populated.
type DeliveryTarget struct {
	Kind         TargetKind `json:"kind" validate:"required,oneof=realtime push email"`
	ConnectionID string     `json:"connection_id,omitempty"`
	Push         *PushToken `json:"push,omitempty" validate:"omitempty"`
	Email        string     `json:"email,omitempty"`
}

// RealtimeTarget addresses the live subscribers of the event's topic.
func RealtimeTarget(connectionID string) DeliveryTarget {
	return DeliveryTarget{Kind: TargetRealtime, ConnectionID: connectionID}
}

// PushTarget addresses one registered device token.
func PushTarget(token PushToken) DeliveryTarget {
	return DeliveryTarget{Kind: TargetPush, Push: &token}
}

// EmailTarget addresses one mailbox.
func EmailTarget(address string) DeliveryTarget {
	return DeliveryTarget{Kind: TargetEmail, Email: address}
}

// NotificationEvent is the unit of work handed to the dispatcher by the
// upstream producer. It is immutable once constructed and consumed exactly
// once; the producer has already resolved which targets are relevant.
type NotificationEvent struct {
	ID      string         `json:"id,omitempty"`
	Kind    EventKind      `json:"kind" validate:"required,oneof=task-created task-updated task-deleted shopping-list-updated notification-created invitation-created"`
	Topic   Topic          `json:"topic" validate:"required"`
	Payload map[string]any `json:"payload,omitempty"`
	Targets []DeliveryTarget `json:"targets,omitempty" validate:"dive"`
}

// NotificationContent extracts the {title, body} block that
// notification-created payloads carry under the "notification" key.
// Missing fields come back empty.
func (e NotificationEvent) NotificationContent() (title, body string) {
	block, ok := e.Payload["notification"].(map[string]any)
	if !ok {
		return "", ""
	}
	title, _ = block["title"].(string)
	body, _ = block["body"].(string)
	return title, body
}

// DeliveryStatus is the per-target result classification.
type DeliveryStatus string

const (
	StatusSent          DeliveryStatus = "sent"
	StatusFailed        DeliveryStatus = "failed"
	StatusInvalidTarget DeliveryStatus = "invalid-target"
)

// Provider names the sender that produced an outcome.
type Provider string

const (
	ProviderRealtime Provider = "realtime"
	ProviderPush     Provider = "push"
	ProviderEmail    Provider = "email"
)

// DeliveryOutcome is the per-target, per-provider result of one attempted
// send. The core never persists outcomes; they are returned to the caller so
// it can deactivate invalid targets externally.
type DeliveryOutcome struct {
	Target   DeliveryTarget `json:"target"`
	Provider Provider       `json:"provider"`
	Status   DeliveryStatus `json:"status"`
	Detail   string         `json:"detail,omitempty"`
}

// Envelope is the wire frame delivered to realtime subscribers of a topic.
type Envelope struct {
	Topic   Topic          `json:"topic"`
	Event   EventKind      `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// InvitationTTL is how long an invite link stays valid. Expiry is enforced by
// the invitation's owner, not by this core.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation is the domain object rendered into an invitation email.
type Invitation struct {
	Email       string    `json:"email"`
	HouseName   string    `json:"house_name"`
	InviterName string    `json:"inviter_name"`
	Role        string    `json:"role"`
	InviteLink  string    `json:"invite_link"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewInvitation stamps creation time and derives the expiry.
func NewInvitation(email, houseName, inviterName, role, inviteLink string) Invitation {
	now := time.Now().UTC()
	return Invitation{
		Email:       email,
		HouseName:   houseName,
		InviterName: inviterName,
		Role:        role,
		InviteLink:  inviteLink,
		CreatedAt:   now,
		ExpiresAt:   now.Add(InvitationTTL),
	}
}

// InvitationFromEvent builds the Invitation for one email target from an
// invitation-created payload.
func InvitationFromEvent(e NotificationEvent, address string) Invitation {
	str := func(key string) string {
		v, _ := e.Payload[key].(string)
		return v
	}
	return NewInvitation(address, str("houseName"), str("inviterName"), str("role"), str("inviteLink"))
}

func (i Invitation) String() string {
	return fmt.Sprintf("invitation{to:%s house:%s}", i.Email, i.HouseName)
}

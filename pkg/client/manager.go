// Package client implements the consuming side of the realtime protocol: a
// process-wide subscription manager that binds house and user topics to local
// cache invalidation and user-visible notification display.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

// Invalidator receives refetch signals for a resource collection. Events never
// mutate local objects directly; the payload is not guaranteed complete.
type Invalidator interface {
	Invalidate(collection string)
}

// Toaster surfaces an in-app transient message.
type Toaster interface {
	Toast(title, body string)
}

// OSNotifier raises notifications at the operating-system level.
type OSNotifier interface {
	PermissionGranted() bool
	Notify(title, body string)
}

// AppState reports whether the application currently has the user's attention.
type AppState interface {
	Foregrounded() bool
}

// Conn is the transport connection the manager multiplexes topics over.
// *realtime.ClientConn satisfies it.
type Conn interface {
	Subscribe(topic notify.Topic, handler func(notify.Envelope)) error
	Unsubscribe(topic notify.Topic) error
	Close() error
}

// Dialer opens the transport connection. Called at most once per manager
// lifetime; the connection is shared by every topic until Teardown.
type Dialer func(ctx context.Context) (Conn, error)

// Resource collection names handed to the Invalidator.
const (
	CollectionTasks         = "tasks"
	CollectionShoppingLists = "shopping-lists"
	CollectionNotifications = "notifications"
)

// Manager owns the singleton realtime connection and the subscription
// bookkeeping for the current (houseID, userID) identity. All entry points
// are safe under concurrent calls from multiple UI surfaces; the presence
// check under the mutex is what makes duplicate subscribe requests no-ops.
type Manager struct {
	dial       Dialer
	cache      Invalidator
	toaster    Toaster
	osNotifier OSNotifier
	appState   AppState
	logger     *slog.Logger

	mu         sync.Mutex
	conn       Conn
	subscribed map[notify.Topic]struct{}
	houseTopic notify.Topic
	userTopic  notify.Topic
}

func NewManager(dial Dialer, cache Invalidator, toaster Toaster, osNotifier OSNotifier, appState AppState, logger *slog.Logger) *Manager {
	return &Manager{
		dial:       dial,
		cache:      cache,
		toaster:    toaster,
		osNotifier: osNotifier,
		appState:   appState,
		logger:     logger.With("component", "SubscriptionManager"),
		subscribed: make(map[notify.Topic]struct{}),
	}
}

// SetIdentity reconciles subscriptions with the current identity. Stale
// topics are unsubscribed before their replacements are subscribed, so the
// manager never holds a binding for an identifier that is no longer current.
// Calling it again with the same identity changes nothing.
func (m *Manager) SetIdentity(ctx context.Context, houseID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wantHouse, wantUser notify.Topic
	if houseID != "" {
		wantHouse = notify.HouseTopic(houseID)
	}
	if userID != "" {
		wantUser = notify.UserTopic(userID)
	}

	if err := m.reconcileLocked(ctx, &m.houseTopic, wantHouse, m.handleHouseEvent); err != nil {
		return err
	}
	return m.reconcileLocked(ctx, &m.userTopic, wantUser, m.handleUserEvent)
}

// Teardown unsubscribes everything, closes the connection and clears the
// bookkeeping so a later SetIdentity starts clean rather than being mistaken
// for a duplicate.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return
	}
	for topic := range m.subscribed {
		if err := m.conn.Unsubscribe(topic); err != nil {
			m.logger.Warn("Unsubscribe during teardown failed", "topic", topic.String(), "err", err)
		}
	}
	if err := m.conn.Close(); err != nil {
		m.logger.Warn("Connection close failed", "err", err)
	}
	m.conn = nil
	m.subscribed = make(map[notify.Topic]struct{})
	m.houseTopic = ""
	m.userTopic = ""
	m.logger.Info("Subscription manager torn down")
}

// reconcileLocked moves one topic slot from its current binding to want.
func (m *Manager) reconcileLocked(ctx context.Context, current *notify.Topic, want notify.Topic, handler func(notify.Envelope)) error {
	if *current == want {
		return nil
	}

	if *current != "" {
		if _, ok := m.subscribed[*current]; ok {
			if m.conn != nil {
				if err := m.conn.Unsubscribe(*current); err != nil {
					m.logger.Warn("Unsubscribe failed", "topic", current.String(), "err", err)
				}
			}
			delete(m.subscribed, *current)
		}
		*current = ""
	}

	if want == "" {
		return nil
	}

	conn, err := m.connLocked(ctx)
	if err != nil {
		return err
	}
	if _, ok := m.subscribed[want]; !ok {
		if err := conn.Subscribe(want, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", want, err)
		}
		m.subscribed[want] = struct{}{}
	}
	*current = want
	m.logger.Debug("Topic bound", "topic", want.String())
	return nil
}

// connLocked lazily dials the shared connection on first use.
func (m *Manager) connLocked(ctx context.Context) (Conn, error) {
	if m.conn != nil {
		return m.conn, nil
	}
	conn, err := m.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial realtime connection: %w", err)
	}
	m.conn = conn
	m.logger.Info("Realtime connection established")
	return conn, nil
}

func (m *Manager) handleHouseEvent(env notify.Envelope) {
	switch env.Event {
	case notify.EventTaskCreated, notify.EventTaskUpdated, notify.EventTaskDeleted:
		m.cache.Invalidate(CollectionTasks)
	case notify.EventShoppingListUpdated:
		m.cache.Invalidate(CollectionShoppingLists)
	default:
		m.logger.Debug("Ignoring unhandled house event", "event", string(env.Event))
	}
}

func (m *Manager) handleUserEvent(env notify.Envelope) {
	if env.Event != notify.EventNotificationCreated {
		m.logger.Debug("Ignoring unhandled user event", "event", string(env.Event))
		return
	}

	m.cache.Invalidate(CollectionNotifications)

	title, body := notify.NotificationEvent{Payload: env.Payload}.NotificationContent()
	m.toaster.Toast(title, body)

	// The toast already covers the foreground case; raising the OS
	// notification too would alert the user twice for one event.
	if m.osNotifier.PermissionGranted() && !m.appState.Foregrounded() {
		m.osNotifier.Notify(title, body)
	}
}

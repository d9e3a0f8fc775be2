// Package subscription owns the single live change subscription of a cart agent.
package subscription

import (
	"context"
	"fmt"
	"sync"

	"github.com/jsa498/digitalmarketing/internal/notify"
	"github.com/sirupsen/logrus"
)

// Subscriber opens and closes change subscriptions. remote.Store satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string, onChange func()) (notify.Subscription, error)
	Unsubscribe(sub notify.Subscription) error
}

// Manager keeps at most one subscription open. Callbacks from a subscription
// that has been replaced or torn down are dropped.
type Manager struct {
	store Subscriber
	log   logrus.FieldLogger

	mu     sync.Mutex
	sub    notify.Subscription
	userID string
	gen    uint64
}

// NewManager creates a manager with no active subscription.
func NewManager(store Subscriber, log logrus.FieldLogger) *Manager {
	return &Manager{
		store: store,
		log:   log,
	}
}

// EnsureSubscribed tears down any active subscription and opens one for userID.
// On error no subscription is active.
func (m *Manager) EnsureSubscribed(ctx context.Context, userID string, onChange func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()

	m.gen++
	gen := m.gen
	deliver := func() {
		m.mu.Lock()
		current := m.sub != nil && m.gen == gen
		m.mu.Unlock()
		if current {
			onChange()
		}
	}

	sub, err := m.store.Subscribe(ctx, userID, deliver)
	if err != nil {
		return fmt.Errorf("subscribe to cart changes for %s: %w", userID, err)
	}

	m.sub = sub
	m.userID = userID
	m.log.WithFields(logrus.Fields{"user_id": userID, "handle": sub.ID()}).Info("Cart change subscription established")
	return nil
}

// Teardown closes the active subscription, if any.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Manager) teardownLocked() {
	if m.sub == nil {
		return
	}

	if err := m.store.Unsubscribe(m.sub); err != nil {
		m.log.WithError(err).WithField("handle", m.sub.ID()).Warn("Failed to close cart change subscription")
	}
	m.log.WithField("user_id", m.userID).Debug("Cart change subscription closed")

	m.sub = nil
	m.userID = ""
	m.gen++
}

// Active returns the subscribed user, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID, m.sub != nil
}

// Handle returns the opaque id of the active subscription, or "".
func (m *Manager) Handle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == nil {
		return ""
	}
	return m.sub.ID()
}

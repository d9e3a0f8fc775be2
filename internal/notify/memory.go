package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a notifier after Close.
var ErrClosed = errors.New("notifier closed")

// MemoryNotifier delivers signals within one process.
type MemoryNotifier struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*dispatcher
	closed bool
}

// NewMemoryNotifier creates an in-process notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[string]*dispatcher)}
}

// Subscribe registers onChange for userID.
func (n *MemoryNotifier) Subscribe(ctx context.Context, userID string, onChange func()) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}

	var d *dispatcher
	d = newDispatcher(userID, onChange, func() { n.remove(userID, d.id) })
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[string]*dispatcher)
	}
	n.subs[userID][d.id] = d
	return d, nil
}

func (n *MemoryNotifier) remove(userID, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.subs[userID], id)
	if len(n.subs[userID]) == 0 {
		delete(n.subs, userID)
	}
}

// Publish signals every subscriber of userID.
func (n *MemoryNotifier) Publish(ctx context.Context, userID string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrClosed
	}
	for _, d := range n.subs[userID] {
		d.signal()
	}
	return nil
}

// Subscribers returns the number of open subscriptions for userID.
func (n *MemoryNotifier) Subscribers(userID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[userID])
}

// Close stops every subscription.
func (n *MemoryNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	var all []*dispatcher
	for _, byID := range n.subs {
		for _, d := range byID {
			all = append(all, d)
		}
	}
	n.mu.Unlock()

	for _, d := range all {
		d.Close()
	}
	return nil
}

var _ Notifier = (*MemoryNotifier)(nil)

// Package notify delivers "this user's cart changed" signals between cart agents.
//
// Notifications carry no payload the receiver may rely on. Receivers re-fetch.
// Delivery is at-least-once per subscriber with coalescing: signals that
// arrive while one is still pending collapse into it.
package notify

import (
	"context"
	"sync"

	"github.com/jsa498/digitalmarketing/pkg/uid"
)

// Subscription is a live change subscription for one user.
type Subscription interface {
	// ID is an opaque handle unique per subscription.
	ID() string

	// UserID is the user whose rows are watched.
	UserID() string

	// Close unsubscribes. It is safe to call more than once.
	Close() error
}

// Notifier opens subscriptions and publishes change signals.
type Notifier interface {
	// Subscribe starts delivering change signals for userID to onChange.
	// onChange runs on a goroutine owned by the subscription, never concurrently
	// with itself.
	Subscribe(ctx context.Context, userID string, onChange func()) (Subscription, error)

	// Publish signals every subscriber of userID.
	Publish(ctx context.Context, userID string) error

	// Close stops the notifier and every open subscription.
	Close() error
}

// dispatcher runs one subscriber callback on its own goroutine.
type dispatcher struct {
	id       string
	userID   string
	onChange func()
	signalCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	onClose  func()
}

func newDispatcher(userID string, onChange func(), onClose func()) *dispatcher {
	d := &dispatcher{
		id:       uid.WithPrefix(uid.SubscriptionPrefix),
		userID:   userID,
		onChange: onChange,
		signalCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		onClose:  onClose,
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.stopCh:
			return
		case <-d.signalCh:
			select {
			case <-d.stopCh:
				return
			default:
			}
			d.onChange()
		}
	}
}

// signal queues one delivery, coalescing with a pending one.
func (d *dispatcher) signal() {
	select {
	case d.signalCh <- struct{}{}:
	default:
	}
}

func (d *dispatcher) ID() string     { return d.id }
func (d *dispatcher) UserID() string { return d.userID }

// Close stops delivery. A callback already running is not interrupted.
func (d *dispatcher) Close() error {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		if d.onClose != nil {
			d.onClose()
		}
	})
	return nil
}

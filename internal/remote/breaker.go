package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/notify"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("remote cart store unavailable")

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	MinRequests uint32
	FailRatio   float64
	OpenTimeout time.Duration
}

// BreakerStore fails fast when the remote store keeps failing.
// Subscriptions bypass the breaker.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next in a circuit breaker.
func NewBreakerStore(next Store, settings BreakerSettings, log logrus.FieldLogger) *BreakerStore {
	st := gobreaker.Settings{
		Name:        "RemoteCartStore",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= settings.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}

	return &BreakerStore{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(st),
	}
}

// State returns the breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) FetchRows(ctx context.Context, userID string) ([]model.RemoteCartRow, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.FetchRows(ctx, userID)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return res.([]model.RemoteCartRow), nil
}

func (b *BreakerStore) InsertRow(ctx context.Context, row model.RemoteCartRow) error {
	return b.run(func() error { return b.next.InsertRow(ctx, row) })
}

func (b *BreakerStore) DeleteRow(ctx context.Context, userID, productID string) error {
	return b.run(func() error { return b.next.DeleteRow(ctx, userID, productID) })
}

func (b *BreakerStore) DeleteAllRows(ctx context.Context, userID string) error {
	return b.run(func() error { return b.next.DeleteAllRows(ctx, userID) })
}

func (b *BreakerStore) Subscribe(ctx context.Context, userID string, onChange func()) (notify.Subscription, error) {
	return b.next.Subscribe(ctx, userID, onChange)
}

func (b *BreakerStore) Unsubscribe(sub notify.Subscription) error {
	return b.next.Unsubscribe(sub)
}

func (b *BreakerStore) run(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return mapBreakerErr(err)
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

var _ Store = (*BreakerStore)(nil)

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/reconcile"
	"github.com/jsa498/digitalmarketing/pkg/uid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrInvalidUser is returned when a sign-in carries no user id.
var ErrInvalidUser = errors.New("user id is required")

// CartService is the cart API used by the storefront UI.
// Remote failures are never returned; they surface through Status and error listeners.
type CartService struct {
	engine    *reconcile.Engine
	log       logrus.FieldLogger
	sessionID string

	mu     sync.RWMutex
	userID string
}

// Option configures a CartService.
type Option func(*CartService)

// WithErrorListener registers fn for every remote failure.
func WithErrorListener(fn func(error)) Option {
	return func(s *CartService) {
		s.engine.OnError(fn)
	}
}

// WithSessionID sets the client session id used to match anonymous checkouts.
func WithSessionID(id string) Option {
	return func(s *CartService) {
		s.sessionID = id
	}
}

// NewCartService creates the facade over engine.
func NewCartService(engine *reconcile.Engine, log logrus.FieldLogger, opts ...Option) *CartService {
	s := &CartService{
		engine:    engine,
		log:       log,
		sessionID: uid.WithPrefix(uid.SessionPrefix),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserID returns the signed-in user, or "" when anonymous.
func (s *CartService) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SessionID returns the client session id.
func (s *CartService) SessionID() string {
	return s.sessionID
}

// AddItem adds item to the cart. Adding an item already in the cart does nothing.
func (s *CartService) AddItem(item model.CartLineItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	s.engine.AddItem(item, s.UserID())
	return nil
}

// RemoveItem removes id from the cart. Removing an absent id does nothing.
func (s *CartService) RemoveItem(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", model.ErrInvalidItem)
	}
	s.engine.RemoveItem(id, s.UserID())
	return nil
}

// ClearCart empties the cart.
func (s *CartService) ClearCart() {
	s.engine.ClearCart(s.UserID())
}

func (s *CartService) GetItemCount() int {
	return s.engine.Cart().Count()
}

func (s *CartService) GetTotalPrice() decimal.Decimal {
	return s.engine.Cart().Total()
}

func (s *CartService) IsItemInCart(id string) bool {
	return s.engine.Cart().Contains(id)
}

// Items returns the cart contents in display order.
func (s *CartService) Items() []model.CartLineItem {
	return s.engine.Cart().Snapshot()
}

// SignIn makes userID the cart owner and starts synchronization.
// A sync failure is reported through Status, not returned.
func (s *CartService) SignIn(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUser
	}

	s.mu.Lock()
	prev := s.userID
	s.userID = userID
	s.mu.Unlock()

	if prev != userID {
		s.log.WithField("user_id", userID).Info("User signed in")
	}

	if err := s.engine.Sync(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Cart sync failed, continuing with local cart")
	}
	return nil
}

// SignOut forgets the user and clears the local cart.
func (s *CartService) SignOut() {
	s.mu.Lock()
	s.userID = ""
	s.mu.Unlock()

	s.engine.SignOut()
}

// Resync re-runs synchronization for the signed-in user and returns the resulting status.
func (s *CartService) Resync(ctx context.Context) reconcile.Status {
	if err := s.engine.Resync(ctx); err != nil {
		s.log.WithError(err).Warn("Cart resync failed")
	}
	return s.engine.Status()
}

func (s *CartService) Status() reconcile.Status {
	return s.engine.Status()
}

// CompleteCheckout clears the cart when ev belongs to this session: either
// its user is the signed-in user or its session id is this client's.
// It reports whether the cart was cleared.
func (s *CartService) CompleteCheckout(ev model.CheckoutEvent) bool {
	userID := s.UserID()

	match := (ev.UserID != "" && ev.UserID == userID) ||
		(ev.SessionID != "" && ev.SessionID == s.sessionID)
	if !match {
		return false
	}

	s.engine.ClearCart(userID)
	s.log.WithFields(logrus.Fields{"user_id": userID, "checkout_session": ev.SessionID}).Info("Checkout completed, cart cleared")
	return true
}

// Flush waits for pending remote writes.
func (s *CartService) Flush(ctx context.Context) error {
	return s.engine.Flush(ctx)
}

// Close stops synchronization.
func (s *CartService) Close() {
	s.engine.Close()
}

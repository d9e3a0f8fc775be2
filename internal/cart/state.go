// Package cart holds the local cart: the ordered set of line items the UI
// reads synchronously, persisted to a local store after every mutation.
package cart

import (
	"context"
	"sync"
	"time"

	"github.com/jsa498/digitalmarketing/internal/localstore"
	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// saveTimeout bounds one snapshot write.
const saveTimeout = 5 * time.Second

// State is the local cart. Reads are safe from any goroutine.
// Only the reconciler calls the mutators.
type State struct {
	// writeMu orders mutations together with their snapshot saves.
	writeMu     sync.Mutex
	mu          sync.RWMutex
	items       []model.CartLineItem
	provisional bool

	store localstore.Store
	log   logrus.FieldLogger
}

// NewState creates an empty cart backed by store. store may be nil.
func NewState(store localstore.Store, log logrus.FieldLogger) *State {
	return &State{
		items: []model.CartLineItem{},
		store: store,
		log:   log,
	}
}

// Restore loads the saved snapshot. A restored cart is provisional until the
// first Replace from the remote store.
func (s *State) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	items, err := s.store.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to restore local cart, starting empty")
		return err
	}

	s.mu.Lock()
	s.items = dedupe(items)
	s.provisional = len(s.items) > 0
	s.mu.Unlock()

	s.log.WithField("items", len(items)).Debug("Local cart restored")
	return nil
}

// Count returns the number of distinct items.
func (s *State) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Total returns the sum of item prices.
func (s *State) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Price)
	}
	return total
}

// Contains reports whether id is in the cart.
func (s *State) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.items, id) >= 0
}

// Snapshot returns a copy of the items in display order.
func (s *State) Snapshot() []model.CartLineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

// Provisional reports whether the cart came from the local snapshot and has
// not yet been replaced by remote contents.
func (s *State) Provisional() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provisional
}

// Add appends item. It returns false and changes nothing if the id is present.
func (s *State) Add(item model.CartLineItem) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if indexOf(s.items, item.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items, item.Clone())
	snap := cloneItems(s.items)
	s.mu.Unlock()

	s.save(snap)
	return true
}

// Remove deletes id. It returns false if id was absent.
func (s *State) Remove(id string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	idx := indexOf(s.items, id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	snap := cloneItems(s.items)
	s.mu.Unlock()

	s.save(snap)
	return true
}

// Clear empties the cart.
func (s *State) Clear() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.items = []model.CartLineItem{}
	s.provisional = false
	s.mu.Unlock()

	s.save(nil)
}

// Replace swaps the whole cart for items, keeping the first of any duplicate id.
func (s *State) Replace(items []model.CartLineItem) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := dedupe(items)

	s.mu.Lock()
	s.items = next
	s.provisional = false
	snap := cloneItems(s.items)
	s.mu.Unlock()

	s.save(snap)
}

// save runs outside mu. Failures leave the in-memory cart authoritative.
func (s *State) save(items []model.CartLineItem) {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.store.Save(ctx, items); err != nil {
		s.log.WithError(err).Warn("Failed to save local cart")
	}
}

func indexOf(items []model.CartLineItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func dedupe(items []model.CartLineItem) []model.CartLineItem {
	out := make([]model.CartLineItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it.Clone())
	}
	return out
}

func cloneItems(items []model.CartLineItem) []model.CartLineItem {
	out := make([]model.CartLineItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

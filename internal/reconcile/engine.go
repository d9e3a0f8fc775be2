// Package reconcile keeps the local cart converged with the remote cart store.
//
// Local mutations apply immediately and queue a remote write. Remote change
// notifications trigger a full fetch that replaces the local cart. Fetches
// are discarded when they are stale: started for a previous user, overtaken
// by a newer fetch, or raced by a local mutation whose write has not landed.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jsa498/digitalmarketing/internal/cart"
	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/remote"
	"github.com/jsa498/digitalmarketing/internal/subscription"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 10 * time.Second

// Options configures an Engine.
type Options struct {
	// Timeout bounds each remote call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Engine is the only writer of the local cart.
type Engine struct {
	cart    *cart.State
	store   remote.Store
	subs    *subscription.Manager
	log     logrus.FieldLogger
	timeout time.Duration
	queue   *writeQueue

	// subMu orders subscription changes against generation checks.
	subMu sync.Mutex

	mu          sync.Mutex
	state       State
	phase       Phase
	userID      string
	gen         uint64
	fetchSeq    uint64
	appliedSeq  uint64
	mutations   uint64
	dirty       bool
	lastErr     error
	lastErrAt   time.Time
	syncedAt    time.Time
	errHandlers []func(error)
}

// NewEngine creates an engine in the Unauthenticated state.
func NewEngine(state *cart.State, store remote.Store, log logrus.FieldLogger, opts Options) *Engine {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	e := &Engine{
		cart:    state,
		store:   store,
		subs:    subscription.NewManager(store, log),
		log:     log,
		timeout: timeout,
		state:   Unauthenticated,
		phase:   NotStarted,
	}
	e.queue = newWriteQueue(e.execWrite, e.onQueueDrained)
	return e
}

// OnError registers fn to receive every reported remote failure.
func (e *Engine) OnError(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errHandlers = append(e.errHandlers, fn)
}

// Cart returns the local cart the engine writes.
func (e *Engine) Cart() *cart.State {
	return e.cart
}

// AddItem appends item locally and, for a signed-in user, queues a remote insert.
// An item already in the cart is a no-op.
func (e *Engine) AddItem(item model.CartLineItem, userID string) bool {
	if !e.cart.Add(item) {
		return false
	}
	if userID == "" {
		return true
	}

	row := model.RowFromItem(userID, item)
	e.enqueue(userID, "insert "+item.ID, func(ctx context.Context) error {
		return e.store.InsertRow(ctx, row)
	})
	return true
}

// RemoveItem removes id locally and, for a signed-in user, queues a remote delete.
// An absent id is a no-op.
func (e *Engine) RemoveItem(id, userID string) bool {
	if !e.cart.Remove(id) {
		return false
	}
	if userID == "" {
		return true
	}

	e.enqueue(userID, "delete "+id, func(ctx context.Context) error {
		return e.store.DeleteRow(ctx, userID, id)
	})
	return true
}

// ClearCart empties the cart locally and, for a signed-in user, queues a
// remote delete of every row.
func (e *Engine) ClearCart(userID string) {
	e.cart.Clear()
	if userID == "" {
		return
	}

	e.enqueue(userID, "clear", func(ctx context.Context) error {
		return e.store.DeleteAllRows(ctx, userID)
	})
}

// enqueue queues a remote write for userID. Writes for a user who is not the
// current session owner are dropped; writes already queued run regardless of
// later sign-out.
func (e *Engine) enqueue(userID, desc string, run func(ctx context.Context) error) {
	e.mu.Lock()
	if userID != e.userID {
		current := e.userID
		e.mu.Unlock()
		e.log.WithFields(logrus.Fields{"op": desc, "user_id": userID, "session_user": current}).Warn("Remote write for inactive user dropped")
		return
	}
	e.mutations++
	e.mu.Unlock()

	if !e.queue.push(writeOp{userID: userID, desc: desc, run: run}) {
		e.log.WithField("op", desc).Warn("Engine closed, remote write dropped")
	}
}

func (e *Engine) execWrite(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := op.run(ctx); err != nil {
		e.report(fmt.Errorf("remote %s for %s: %w", op.desc, op.userID, err))
		return
	}
	e.log.WithFields(logrus.Fields{"op": op.desc, "user_id": op.userID}).Debug("Remote write applied")
}

// onQueueDrained runs the fetch a notification deferred while writes were pending.
func (e *Engine) onQueueDrained() {
	e.mu.Lock()
	if !e.dirty || e.userID == "" {
		e.mu.Unlock()
		return
	}
	e.dirty = false
	gen, userID := e.gen, e.userID
	e.mu.Unlock()

	go e.refresh(gen, userID)
}

// Sync starts synchronization for userID: fetch the remote cart, replace the
// local cart with it and subscribe to changes. It is a no-op while a sync for
// the same user is in progress or has completed. An empty userID is a no-op.
func (e *Engine) Sync(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	e.mu.Lock()
	if userID == e.userID && e.phase != NotStarted {
		e.mu.Unlock()
		e.log.WithField("user_id", userID).Debug("Sync suppressed, already started")
		return nil
	}
	if e.userID != "" && e.userID != userID {
		e.log.WithFields(logrus.Fields{"from": e.userID, "to": userID}).Info("User switched, restarting sync")
	}
	gen := e.beginLocked(userID)
	e.mu.Unlock()

	return e.initialize(ctx, gen, userID)
}

// Resync re-runs synchronization for the current user, even after it
// completed or failed. It is a no-op while signed out or while a sync is running.
func (e *Engine) Resync(ctx context.Context) error {
	e.mu.Lock()
	userID := e.userID
	if userID == "" || e.phase == InProgress {
		e.mu.Unlock()
		return nil
	}
	gen := e.beginLocked(userID)
	e.mu.Unlock()

	return e.initialize(ctx, gen, userID)
}

func (e *Engine) beginLocked(userID string) uint64 {
	e.userID = userID
	e.gen++
	e.dirty = false
	e.phase = InProgress
	e.state = Initializing
	return e.gen
}

func (e *Engine) initialize(ctx context.Context, gen uint64, userID string) error {
	if err := e.fetchAndApply(ctx, gen, userID); err != nil {
		err = fmt.Errorf("initial fetch for %s: %w", userID, err)
		e.failInit(gen, err)
		return err
	}

	e.subMu.Lock()
	if !e.current(gen) {
		e.subMu.Unlock()
		return nil
	}
	err := e.subs.EnsureSubscribed(ctx, userID, func() { e.onRemoteChange(gen, userID) })
	e.subMu.Unlock()
	if err != nil {
		e.failInit(gen, err)
		return err
	}

	e.mu.Lock()
	if e.gen == gen {
		e.state = Synchronized
		e.phase = Done
		e.syncedAt = time.Now()
	}
	e.mu.Unlock()

	e.log.WithField("user_id", userID).Info("Cart synchronized")
	return nil
}

// failInit leaves the local cart untouched. The phase resets so a later
// Sync for the same user tries again.
func (e *Engine) failInit(gen uint64, err error) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.state = Error
	e.phase = NotStarted
	e.mu.Unlock()

	e.report(err)
}

func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen == gen
}

// onRemoteChange handles one change notification for the subscription of gen.
func (e *Engine) onRemoteChange(gen uint64, userID string) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	if e.queue.pendingFor(userID) > 0 {
		e.dirty = true
		e.mu.Unlock()
		e.log.WithField("user_id", userID).Debug("Remote change deferred until writes drain")
		return
	}
	e.mu.Unlock()

	e.refresh(gen, userID)
}

func (e *Engine) refresh(gen uint64, userID string) {
	if err := e.fetchAndApply(context.Background(), gen, userID); err != nil {
		e.report(fmt.Errorf("refetch for %s: %w", userID, err))
	}
}

// fetchAndApply replaces the local cart with the remote rows of userID unless
// the result is stale by the time it arrives.
func (e *Engine) fetchAndApply(ctx context.Context, gen uint64, userID string) error {
	e.mu.Lock()
	e.fetchSeq++
	seq := e.fetchSeq
	mutations := e.mutations
	e.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	rows, err := e.store.FetchRows(fctx, userID)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		e.log.WithField("user_id", userID).Debug("Discarding fetch for previous session")
		return nil
	}
	if err != nil {
		return err
	}
	if seq < e.appliedSeq {
		e.log.WithField("seq", seq).Debug("Discarding out-of-order fetch")
		return nil
	}

	if e.queue.pendingFor(userID) > 0 {
		e.dirty = true
		return nil
	}
	if e.mutations != mutations {
		// A local write landed while fetching; the rows may predate it.
		go e.refresh(gen, userID)
		return nil
	}

	e.appliedSeq = seq
	e.cart.Replace(model.ItemsFromRows(rows))
	e.log.WithFields(logrus.Fields{"user_id": userID, "items": len(rows)}).Debug("Local cart replaced from remote")
	return nil
}

// SignOut drops the session: the subscription closes and the local cart is
// cleared. Remote writes queued before sign-out still run for their user.
func (e *Engine) SignOut() {
	e.mu.Lock()
	userID := e.userID
	e.gen++
	e.userID = ""
	e.state = Unauthenticated
	e.phase = NotStarted
	e.dirty = false
	e.mu.Unlock()

	if pending := e.queue.pendingFor(userID); pending > 0 && userID != "" {
		e.log.WithFields(logrus.Fields{"user_id": userID, "pending": pending}).Info("Signed out with remote writes pending, they will still run")
	}

	e.subMu.Lock()
	e.subs.Teardown()
	e.subMu.Unlock()

	e.cart.Clear()
	if userID != "" {
		e.log.WithField("user_id", userID).Info("Signed out, local cart cleared")
	}
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		State:       e.state,
		Phase:       e.phase,
		UserID:      e.userID,
		LastErrorAt: e.lastErrAt,
		SyncedAt:    e.syncedAt,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	e.mu.Unlock()

	_, st.Subscribed = e.subs.Active()
	st.PendingWrites = e.queue.pending()
	st.Provisional = e.cart.Provisional()
	return st
}

// SubscriptionHandle returns the id of the live subscription, or "".
func (e *Engine) SubscriptionHandle() string {
	return e.subs.Handle()
}

// Flush waits for queued remote writes to finish.
func (e *Engine) Flush(ctx context.Context) error {
	return e.queue.wait(ctx)
}

// Close closes the subscription and stops the write worker after queued
// writes have run.
func (e *Engine) Close() {
	e.subMu.Lock()
	e.subs.Teardown()
	e.subMu.Unlock()

	e.queue.close()
}

func (e *Engine) report(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.lastErrAt = time.Now()
	handlers := append([]func(error){}, e.errHandlers...)
	e.mu.Unlock()

	e.log.WithError(err).Warn("Remote cart operation failed")
	for _, fn := range handlers {
		fn(err)
	}
}

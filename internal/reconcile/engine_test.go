package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jsa498/digitalmarketing/internal/cart"
	"github.com/jsa498/digitalmarketing/internal/localstore"
	"github.com/jsa498/digitalmarketing/internal/logger"
	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/notify"
	"github.com/jsa498/digitalmarketing/internal/remote"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory row repository with gates and failure injection.
type fakeRepo struct {
	mu   sync.Mutex
	rows map[string][]model.RemoteCartRow

	fetches map[string]int
	inserts int
	deletes int
	clears  int

	fetchErr  error
	insertErr error
	deleteErr error

	fetchGate   map[string]chan struct{}
	fetchStarts chan string
	insertGate  chan struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rows:        make(map[string][]model.RemoteCartRow),
		fetches:     make(map[string]int),
		fetchGate:   make(map[string]chan struct{}),
		fetchStarts: make(chan string, 64),
	}
}

func (f *fakeRepo) FetchRows(ctx context.Context, userID string) ([]model.RemoteCartRow, error) {
	f.mu.Lock()
	f.fetches[userID]++
	gate := f.fetchGate[userID]
	f.mu.Unlock()

	select {
	case f.fetchStarts <- userID:
	default:
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]model.RemoteCartRow{}, f.rows[userID]...), nil
}

func (f *fakeRepo) InsertRow(ctx context.Context, row model.RemoteCartRow) error {
	f.mu.Lock()
	gate := f.insertGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, r := range f.rows[row.UserID] {
		if r.ProductID == row.ProductID {
			return nil
		}
	}
	row.CreatedAt = time.Now()
	f.rows[row.UserID] = append(f.rows[row.UserID], row)
	return nil
}

func (f *fakeRepo) DeleteRow(ctx context.Context, userID, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := f.rows[userID][:0:0]
	for _, r := range f.rows[userID] {
		if r.ProductID != productID {
			kept = append(kept, r)
		}
	}
	f.rows[userID] = kept
	return nil
}

func (f *fakeRepo) DeleteAllRows(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	delete(f.rows, userID)
	return nil
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

func (f *fakeRepo) seed(userID string, items ...model.CartLineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		f.rows[userID] = append(f.rows[userID], model.RowFromItem(userID, it))
	}
}

func (f *fakeRepo) remoteIDs(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, r := range f.rows[userID] {
		out = append(out, r.ProductID)
	}
	return out
}

func (f *fakeRepo) fetchCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[userID]
}

func (f *fakeRepo) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

func (f *fakeRepo) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

func (f *fakeRepo) gateFetch(userID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.fetchGate[userID] = ch
	return ch
}

func (f *fakeRepo) ungateFetch(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fetchGate, userID)
}

// failingSubscriber rejects every subscription.
type failingSubscriber struct {
	remote.Store
}

func (failingSubscriber) Subscribe(ctx context.Context, userID string, onChange func()) (notify.Subscription, error) {
	return nil, errors.New("realtime unavailable")
}

type harness struct {
	repo     *fakeRepo
	notifier *notify.MemoryNotifier
	store    remote.Store
	state    *cart.State
	engine   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := newFakeRepo()
	n := notify.NewMemoryNotifier()
	store := remote.NewStore(repo, n, logger.Discard())
	return newHarnessWith(t, repo, n, store)
}

func newHarnessWith(t *testing.T, repo *fakeRepo, n *notify.MemoryNotifier, store remote.Store) *harness {
	t.Helper()
	state := cart.NewState(localstore.NewMemoryStore(), logger.Discard())
	engine := NewEngine(state, store, logger.Discard(), Options{Timeout: time.Second})
	t.Cleanup(func() {
		engine.Close()
		n.Close()
	})
	return &harness{repo: repo, notifier: n, store: store, state: state, engine: engine}
}

func product(id, price string) model.CartLineItem {
	return model.CartLineItem{ID: id, Title: "Product " + id, Price: decimal.RequireFromString(price)}
}

func localIDs(s *cart.State) []string {
	out := []string{}
	for _, it := range s.Snapshot() {
		out = append(out, it.ID)
	}
	return out
}

func sorted(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

func flush(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Flush(ctx))
}

func TestEngine_AnonymousMutationsStayLocal(t *testing.T) {
	h := newHarness(t)

	h.engine.AddItem(product("a", "10"), "")
	h.engine.RemoveItem("a", "")
	h.engine.AddItem(product("b", "5"), "")
	h.engine.ClearCart("")
	flush(t, h.engine)

	assert.Equal(t, 0, h.repo.insertCount())
	assert.Equal(t, Unauthenticated, h.engine.Status().State)
	assert.Equal(t, 0, h.state.Count())
}

func TestEngine_IdempotentAdd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Sync(ctx, "u1"))

	assert.True(t, h.engine.AddItem(product("a", "10"), "u1"))
	assert.False(t, h.engine.AddItem(product("a", "10"), "u1"))
	flush(t, h.engine)

	assert.Equal(t, 1, h.state.Count())
	assert.Equal(t, 1, h.repo.insertCount())
	assert.Equal(t, []string{"a"}, h.repo.remoteIDs("u1"))
}

func TestEngine_LocalRemoteConvergence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Sync(ctx, "u1"))

	h.engine.AddItem(product("a", "10"), "u1")
	h.engine.AddItem(product("b", "20"), "u1")
	h.engine.AddItem(product("c", "30"), "u1")
	h.engine.RemoveItem("a", "u1")
	flush(t, h.engine)

	assert.Equal(t, []string{"b", "c"}, h.repo.remoteIDs("u1"))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(sorted(h.repo.remoteIDs("u1")), sorted(localIDs(h.state)))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_RemoveThenTotal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Sync(ctx, "u1"))

	h.engine.AddItem(product("a", "12.50"), "u1")
	h.engine.AddItem(product("b", "7.25"), "u1")
	h.engine.RemoveItem("a", "u1")

	assert.True(t, h.state.Total().Equal(decimal.RequireFromString("7.25")))
	assert.False(t, h.state.Contains("a"))
}

func TestEngine_ClearEmptiesLocalAndRemote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.seed("u1", product("a", "1"), product("b", "2"))
	require.NoError(t, h.engine.Sync(ctx, "u1"))
	require.Equal(t, 2, h.state.Count())

	h.engine.ClearCart("u1")
	assert.Equal(t, 0, h.state.Count())

	flush(t, h.engine)
	assert.Empty(t, h.repo.remoteIDs("u1"))
}

func TestEngine_SignOutIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.seed("u1", product("a", "1"))
	require.NoError(t, h.engine.Sync(ctx, "u1"))
	require.Equal(t, 1, h.state.Count())

	h.engine.SignOut()

	st := h.engine.Status()
	assert.Equal(t, Unauthenticated, st.State)
	assert.False(t, st.Subscribed)
	assert.Equal(t, 0, h.state.Count())
	assert.Equal(t, 0, h.notifier.Subscribers("u1"))

	// A later change for u1 must not reach this session.
	require.NoError(t, h.store.InsertRow(ctx, model.RowFromItem("u1", product("b", "2"))))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.state.Count())
	assert.Equal(t, 1, h.repo.fetchCount("u1"))
}

func TestEngine_SingleSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Sync(ctx, "u1"))
	require.NoError(t, h.engine.Sync(ctx, "u1"))
	require.NoError(t, h.engine.Resync(ctx))
	require.NoError(t, h.engine.Resync(ctx))
	assert.Equal(t, 1, h.notifier.Subscribers("u1"))

	require.NoError(t, h.engine.Sync(ctx, "u2"))
	assert.Equal(t, 0, h.notifier.Subscribers("u1"))
	assert.Equal(t, 1, h.notifier.Subscribers("u2"))
	assert.NotEmpty(t, h.engine.SubscriptionHandle())
}

func TestEngine_SyncSuppressedWhenDone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Sync(ctx, "u1"))
	require.NoError(t, h.engine.Sync(ctx, "u1"))

	assert.Equal(t, 1, h.repo.fetchCount("u1"))
	st := h.engine.Status()
	assert.Equal(t, Synchronized, st.State)
	assert.Equal(t, Done, st.Phase)
}

func TestEngine_ConcurrentSyncSuppressed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gate := h.repo.gateFetch("u1")

	errCh := make(chan error, 1)
	go func() { errCh <- h.engine.Sync(ctx, "u1") }()
	<-h.repo.fetchStarts

	assert.Equal(t, InProgress, h.engine.Status().Phase)
	require.NoError(t, h.engine.Sync(ctx, "u1"))
	require.NoError(t, h.engine.Resync(ctx))

	close(gate)
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, h.repo.fetchCount("u1"))
	assert.Equal(t, Synchronized, h.engine.Status().State)
}

// Scenario: a signed-in user with remote items opens the cart.
func TestEngine_SyncReplacesWithRemote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.seed("u1", product("x", "10"), product("y", "20"))

	h.engine.AddItem(product("anon", "5"), "")
	require.NoError(t, h.engine.Sync(ctx, "u1"))

	assert.Equal(t, []string{"x", "y"}, localIDs(h.state))
	assert.True(t, h.state.Total().Equal(decimal.RequireFromString("30")))
	assert.Equal(t, Synchronized, h.engine.Status().State)
}

// Scenario: another device of the same user adds an item.
func TestEngine_PeerDeviceChangeArrives(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Sync(ctx, "u1"))

	peer := remote.NewStore(h.repo, h.notifier, logger.Discard())
	require.NoError(t, peer.InsertRow(ctx, model.RowFromItem("u1", product("z", "9"))))

	assert.Eventually(t, func() bool { return h.state.Contains("z") }, 2*time.Second, 10*time.Millisecond)
}

// Scenario: the remote store rejects a write.
func TestEngine_RemoteWriteFailureKeepsLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Sync(ctx, "u1"))

	var mu sync.Mutex
	var reported []error
	h.engine.OnError(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})

	h.repo.mu.Lock()
	h.repo.insertErr = errors.New("network unreachable")
	h.repo.mu.Unlock()

	h.engine.AddItem(product("a", "10"), "u1")
	flush(t, h.engine)

	assert.True(t, h.state.Contains("a"))
	assert.Equal(t, 1, h.repo.insertCount())
	st := h.engine.Status()
	assert.Contains(t, st.LastError, "network unreachable")
	assert.False(t, st.LastErrorAt.IsZero())
	assert.Equal(t, Synchronized, st.State)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
}

func TestEngine_StaleFetchDiscardedOnUserSwitch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.seed("u1", product("old", "1"))
	h.repo.seed("u2", product("new", "2"))
	gate := h.repo.gateFetch("u1")

	errCh := make(chan error, 1)
	go func() { errCh <- h.engine.Sync(ctx, "u1") }()
	require.Equal(t, "u1", <-h.repo.fetchStarts)

	require.NoError(t, h.engine.Sync(ctx, "u2"))
	assert.Equal(t, []string{"new"}, localIDs(h.state))

	close(gate)
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"new"}, localIDs(h.state))
	st := h.engine.Status()
	assert.Equal(t, "u2", st.UserID)
	assert.Equal(t, Synchronized, st.State)
	assert.Equal(t, 0, h.notifier.Subscribers("u1"))
	assert.Equal(t, 1, h.notifier.Subscribers("u2"))
}

func TestEngine_NotificationDeferredWhileWritesPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Sync(ctx, "u1"))
	fetchesAfterSync := h.repo.fetchCount("u1")

	gate := make(chan struct{})
	h.repo.mu.Lock()
	h.repo.insertGate = gate
	h.repo.mu.Unlock()

	h.engine.AddItem(product("a", "10"), "u1")
	require.Eventually(t, func() bool { return h.engine.Status().PendingWrites == 1 }, time.Second, 5*time.Millisecond)

	// An unrelated notification arrives while the insert is in flight.
	require.NoError(t, h.notifier.Publish(ctx, "u1"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, fetchesAfterSync, h.repo.fetchCount("u1"))
	assert.True(t, h.state.Contains("a"))

	h.repo.mu.Lock()
	h.repo.insertGate = nil
	h.repo.mu.Unlock()
	close(gate)
	flush(t, h.engine)

	assert.Eventually(t, func() bool { return h.repo.fetchCount("u1") > fetchesAfterSync }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"a"}, localIDs(h.state))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_InitialFetchFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.AddItem(product("local", "3"), "")
	h.repo.mu.Lock()
	h.repo.fetchErr = errors.New("timeout")
	h.repo.mu.Unlock()

	err := h.engine.Sync(ctx, "u1")
	require.Error(t, err)

	st := h.engine.Status()
	assert.Equal(t, Error, st.State)
	assert.Equal(t, NotStarted, st.Phase)
	assert.False(t, st.Subscribed)
	assert.Equal(t, []string{"local"}, localIDs(h.state))

	h.repo.mu.Lock()
	h.repo.fetchErr = nil
	h.repo.mu.Unlock()
	h.repo.seed("u1", product("r", "4"))

	require.NoError(t, h.engine.Resync(ctx))
	st = h.engine.Status()
	assert.Equal(t, Synchronized, st.State)
	assert.True(t, st.Subscribed)
	assert.Equal(t, []string{"r"}, localIDs(h.state))
}

func TestEngine_SubscriptionFailureKeepsLocal(t *testing.T) {
	repo := newFakeRepo()
	n := notify.NewMemoryNotifier()
	store := failingSubscriber{Store: remote.NewStore(repo, n, logger.Discard())}
	h := newHarnessWith(t, repo, n, store)
	repo.seed("u1", product("a", "1"))

	err := h.engine.Sync(context.Background(), "u1")
	require.Error(t, err)

	st := h.engine.Status()
	assert.Equal(t, Error, st.State)
	assert.False(t, st.Subscribed)
	assert.Contains(t, st.LastError, "realtime unavailable")
	assert.Equal(t, []string{"a"}, localIDs(h.state))
}

func TestEngine_SignOutLetsQueuedWritesFinish(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.seed("u1", product("x", "5"))
	require.NoError(t, h.engine.Sync(ctx, "u1"))

	gate := make(chan struct{})
	h.repo.mu.Lock()
	h.repo.insertGate = gate
	h.repo.mu.Unlock()

	h.engine.AddItem(product("a", "1"), "u1")
	h.engine.ClearCart("u1")
	require.Eventually(t, func() bool { return h.engine.Status().PendingWrites == 2 }, time.Second, 5*time.Millisecond)

	h.engine.SignOut()
	assert.Equal(t, 0, h.state.Count())

	// Writes for u1 issued after sign-out are not queued.
	h.engine.AddItem(product("late", "1"), "u1")
	assert.Equal(t, 2, h.engine.Status().PendingWrites)

	h.repo.mu.Lock()
	h.repo.insertGate = nil
	h.repo.mu.Unlock()
	close(gate)
	flush(t, h.engine)

	assert.Empty(t, h.repo.remoteIDs("u1"))
	assert.Equal(t, 0, h.engine.Status().PendingWrites)

	require.NoError(t, h.engine.Sync(ctx, "u1"))
	assert.Empty(t, localIDs(h.state))
	assert.Equal(t, 1, h.repo.insertCount())
}

func TestEngine_RemoteDeleteFailureKeepsLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.seed("u1", product("p2", "15"))
	require.NoError(t, h.engine.Sync(ctx, "u1"))
	require.Equal(t, []string{"p2"}, localIDs(h.state))

	h.repo.mu.Lock()
	h.repo.deleteErr = errors.New("connection reset")
	h.repo.mu.Unlock()

	assert.True(t, h.engine.RemoveItem("p2", "u1"))
	flush(t, h.engine)

	assert.Empty(t, localIDs(h.state))
	assert.Equal(t, 1, h.repo.deleteCount())
	assert.Equal(t, []string{"p2"}, h.repo.remoteIDs("u1"))

	st := h.engine.Status()
	assert.Contains(t, st.LastError, "connection reset")
	assert.Equal(t, Synchronized, st.State)
}

func TestEngine_ProvisionalUntilSynced(t *testing.T) {
	store := localstore.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), []model.CartLineItem{product("saved", "1")}))

	repo := newFakeRepo()
	n := notify.NewMemoryNotifier()
	state := cart.NewState(store, logger.Discard())
	require.NoError(t, state.Restore(context.Background()))
	engine := NewEngine(state, remote.NewStore(repo, n, logger.Discard()), logger.Discard(), Options{})
	t.Cleanup(func() {
		engine.Close()
		n.Close()
	})

	assert.True(t, engine.Status().Provisional)
	require.NoError(t, engine.Sync(context.Background(), "u1"))
	assert.False(t, engine.Status().Provisional)
	assert.Equal(t, 0, state.Count())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "synchronized", Synchronized.String())
	assert.Equal(t, "in_progress", InProgress.String())

	text, err := Error.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "error", string(text))
}

package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jsa498/digitalmarketing/internal/cart"
	"github.com/jsa498/digitalmarketing/internal/localstore"
	"github.com/jsa498/digitalmarketing/internal/logger"
	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/notify"
	"github.com/jsa498/digitalmarketing/internal/reconcile"
	"github.com/jsa498/digitalmarketing/internal/remote"
	"github.com/jsa498/digitalmarketing/internal/repository"
	"github.com/jsa498/digitalmarketing/pkg/uid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo  *repository.SQLiteCartRepository
	store *remote.RepositoryStore
	svc   *CartService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repo, err := repository.NewSQLiteCartRepository(filepath.Join(t.TempDir(), "remote.db"), logger.Discard())
	require.NoError(t, err)

	n := notify.NewMemoryNotifier()
	store := remote.NewStore(repo, n, logger.Discard())
	state := cart.NewState(localstore.NewMemoryStore(), logger.Discard())
	engine := reconcile.NewEngine(state, store, logger.Discard(), reconcile.Options{Timeout: time.Second})
	svc := NewCartService(engine, logger.Discard(), opts...)

	t.Cleanup(func() {
		svc.Close()
		n.Close()
		repo.Close()
	})
	return &fixture{repo: repo, store: store, svc: svc}
}

func guide() model.CartLineItem {
	return model.CartLineItem{ID: "guide", Title: "Growth Guide", Price: decimal.RequireFromString("29.99")}
}

func course() model.CartLineItem {
	return model.CartLineItem{ID: "course", Title: "SEO Course", Price: decimal.RequireFromString("99.99")}
}

func flushFixture(t *testing.T, f *fixture) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Flush(ctx))
}

func TestCartService_AnonymousCart(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.AddItem(guide()))
	require.NoError(t, f.svc.AddItem(guide()))
	require.NoError(t, f.svc.AddItem(course()))

	assert.Equal(t, 2, f.svc.GetItemCount())
	assert.True(t, f.svc.GetTotalPrice().Equal(decimal.RequireFromString("129.98")))
	assert.True(t, f.svc.IsItemInCart("guide"))
	assert.Empty(t, f.svc.UserID())

	require.NoError(t, f.svc.RemoveItem("guide"))
	assert.False(t, f.svc.IsItemInCart("guide"))
	assert.Len(t, f.svc.Items(), 1)

	f.svc.ClearCart()
	assert.Equal(t, 0, f.svc.GetItemCount())
}

func TestCartService_Validation(t *testing.T) {
	f := newFixture(t)

	err := f.svc.AddItem(model.CartLineItem{Title: "no id"})
	assert.ErrorIs(t, err, model.ErrInvalidItem)

	err = f.svc.AddItem(model.CartLineItem{ID: "neg", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, model.ErrInvalidItem)

	assert.ErrorIs(t, f.svc.RemoveItem(""), model.ErrInvalidItem)
	assert.ErrorIs(t, f.svc.SignIn(context.Background(), ""), ErrInvalidUser)
	assert.Equal(t, 0, f.svc.GetItemCount())
}

func TestCartService_SignedInWritesReachRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SignIn(ctx, "u1"))
	assert.Equal(t, reconcile.Synchronized, f.svc.Status().State)

	require.NoError(t, f.svc.AddItem(guide()))
	require.NoError(t, f.svc.AddItem(course()))
	flushFixture(t, f)

	rows, err := f.repo.FetchRows(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "guide", rows[0].ProductID)

	f.svc.ClearCart()
	flushFixture(t, f)
	rows, err = f.repo.FetchRows(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCartService_SignOutClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SignIn(ctx, "u1"))
	require.NoError(t, f.svc.AddItem(guide()))
	flushFixture(t, f)

	f.svc.SignOut()
	assert.Equal(t, 0, f.svc.GetItemCount())
	assert.Equal(t, reconcile.Unauthenticated, f.svc.Status().State)

	// Remote cart survives sign-out and comes back on the next sign-in.
	require.NoError(t, f.svc.SignIn(ctx, "u1"))
	assert.True(t, f.svc.IsItemInCart("guide"))
}

func TestCartService_SignInFailureIsNotReturned(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	f := newFixture(t, WithErrorListener(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}))
	require.NoError(t, f.repo.Close())

	require.NoError(t, f.svc.AddItem(guide()))
	require.NoError(t, f.svc.SignIn(context.Background(), "u1"))

	assert.Equal(t, reconcile.Error, f.svc.Status().State)
	assert.True(t, f.svc.IsItemInCart("guide"))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, errs)
	assert.Error(t, errors.Unwrap(errs[0]))
}

func TestCartService_CompleteCheckout(t *testing.T) {
	f := newFixture(t, WithSessionID("sess-1"))
	ctx := context.Background()

	require.NoError(t, f.svc.AddItem(guide()))
	assert.False(t, f.svc.CompleteCheckout(model.CheckoutEvent{SessionID: "other"}))
	assert.Equal(t, 1, f.svc.GetItemCount())

	assert.True(t, f.svc.CompleteCheckout(model.CheckoutEvent{SessionID: "sess-1"}))
	assert.Equal(t, 0, f.svc.GetItemCount())

	require.NoError(t, f.svc.SignIn(ctx, "u1"))
	require.NoError(t, f.svc.AddItem(course()))
	assert.False(t, f.svc.CompleteCheckout(model.CheckoutEvent{UserID: "u2"}))
	assert.True(t, f.svc.CompleteCheckout(model.CheckoutEvent{UserID: "u1", SessionID: "cs_test"}))
	assert.Equal(t, 0, f.svc.GetItemCount())

	flushFixture(t, f)
	rows, err := f.repo.FetchRows(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCartService_Resync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st := f.svc.Resync(ctx)
	assert.Equal(t, reconcile.Unauthenticated, st.State)

	require.NoError(t, f.svc.SignIn(ctx, "u1"))
	require.NoError(t, f.repo.InsertRow(ctx, model.RowFromItem("u1", guide())))

	st = f.svc.Resync(ctx)
	assert.Equal(t, reconcile.Synchronized, st.State)
	assert.True(t, f.svc.IsItemInCart("guide"))
	assert.Equal(t, "u1", st.UserID)
}

func TestCartService_DefaultSessionID(t *testing.T) {
	a := newFixture(t)
	b := newFixture(t)

	assert.True(t, uid.HasPrefix(a.svc.SessionID(), uid.SessionPrefix))
	assert.NotEqual(t, a.svc.SessionID(), b.svc.SessionID())
}

package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/mood_store/cart-service/internal/domain"
	"github.com/fjod/mood_store/cart-service/internal/mirror"
	"github.com/fjod/mood_store/pkg/money"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMirror(t *testing.T) *mirror.RedisMirror {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	return mirror.NewRedisMirror(rc, time.Hour)
}

func setupManager(t *testing.T) (*Manager, *memStore, *SyncErrorLog) {
	store := newMemStore()
	errs := NewSyncErrorLog(10)
	m := New("user1", store, setupMirror(t), errs, nil, Options{SyncTimeout: time.Second})
	t.Cleanup(m.Close)
	return m, store, errs
}

func product(id, price string) client.ProductView {
	return client.ProductView{ID: id, Name: "product " + id, Price: money.MustParse(price)}
}

func flush(t *testing.T, m *Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Flush(ctx))
}

func TestAddToCart_MergesSameProduct(t *testing.T) {
	sequences := [][]int{{1}, {1, 1}, {2, 3, 5}, {10, 1, 1, 1}}
	for _, qs := range sequences {
		m, _, _ := setupManager(t)
		want := 0
		for _, q := range qs {
			require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), q)))
			want += q
		}

		lines := m.Lines()
		require.Len(t, lines, 1, "one line per product")
		assert.Equal(t, want, lines[0].Quantity)
	}
}

func TestAddToCart_AppendsDistinctProducts(t *testing.T) {
	m, _, _ := setupManager(t)

	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 1)))
	require.NoError(t, m.AddToCart(domain.NewLine(product("p2", "2.00"), 1)))
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 1)))

	lines := m.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.Equal(t, "p2", lines[1].ProductID)
}

func TestAddToCart_RejectsInvalidQuantity(t *testing.T) {
	m, store, _ := setupManager(t)

	err := m.AddToCart(domain.NewLine(product("p1", "1.00"), 0))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Empty(t, m.Lines())

	flush(t, m)
	assert.Empty(t, store.callLog(), "nothing is sent for rejected lines")
}

func TestUpdateQuantity_BelowOneIsNoop(t *testing.T) {
	m, store, _ := setupManager(t)
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 3)))
	before := m.Lines()

	for _, q := range []int{0, -1, -100} {
		require.NoError(t, m.UpdateQuantity(before[0].ID, q))
	}

	assert.Equal(t, before, m.Lines())
	flush(t, m)
	assert.Len(t, store.callLog(), 1, "only the initial upsert reaches the store")
}

func TestUpdateQuantity_SetsAndSyncsVersion(t *testing.T) {
	m, store, _ := setupManager(t)
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 1)))
	id := m.Lines()[0].ID
	v0 := m.Lines()[0].Version

	require.NoError(t, m.UpdateQuantity(id, 4))
	line := m.Lines()[0]
	assert.Equal(t, 4, line.Quantity)
	assert.Greater(t, line.Version, v0)

	flush(t, m)
	row, ok := store.row("user1", "p1")
	require.True(t, ok)
	assert.Equal(t, 4, row.Quantity)
	assert.Equal(t, line.Version, row.Version)
}

func TestUpdateQuantity_UnknownLine(t *testing.T) {
	m, _, _ := setupManager(t)
	assert.ErrorIs(t, m.UpdateQuantity("missing", 2), domain.ErrLineNotFound)
}

func TestRemoveFromCart_UnknownIsNoop(t *testing.T) {
	m, store, _ := setupManager(t)
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 1)))
	before := m.Lines()

	m.RemoveFromCart("does-not-exist")

	assert.Equal(t, before, m.Lines())
	flush(t, m)
	assert.Len(t, store.callLog(), 1)
}

func TestRemoveFromCart(t *testing.T) {
	m, store, _ := setupManager(t)
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 1)))
	require.NoError(t, m.AddToCart(domain.NewLine(product("p2", "1.00"), 1)))

	m.RemoveFromCart(m.Lines()[0].ID)

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0].ProductID)
	flush(t, m)
	_, ok := store.row("user1", "p1")
	assert.False(t, ok)
}

func TestSubtotal_AlwaysFresh(t *testing.T) {
	m, _, _ := setupManager(t)
	sum := func() decimal.Decimal {
		total := decimal.Zero
		for _, l := range m.Lines() {
			total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
		return total
	}

	assert.True(t, m.Subtotal().IsZero())

	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "9.99"), 2)))
	assert.Equal(t, "19.98", m.Subtotal().StringFixed(2))

	require.NoError(t, m.AddToCart(domain.NewLine(product("p2", "0.10"), 3)))
	assert.True(t, sum().Equal(m.Subtotal()))
	assert.Equal(t, "20.28", m.Subtotal().StringFixed(2))

	require.NoError(t, m.UpdateQuantity(m.Lines()[0].ID, 1))
	assert.True(t, sum().Equal(m.Subtotal()))

	m.RemoveFromCart(m.Lines()[1].ID)
	assert.Equal(t, "9.99", m.Subtotal().StringFixed(2))

	m.ClearCart()
	assert.True(t, m.Subtotal().IsZero())
}

func TestRemoteWrites_FollowCallOrder(t *testing.T) {
	m, store, _ := setupManager(t)

	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 1)))
	id := m.Lines()[0].ID
	for q := 2; q <= 6; q++ {
		require.NoError(t, m.UpdateQuantity(id, q))
	}
	require.NoError(t, m.AddToCart(domain.NewLine(product("p2", "1.00"), 1)))
	m.RemoveFromCart(id)
	flush(t, m)

	var got []string
	for _, c := range store.callLog() {
		got = append(got, c.op+":"+c.productID)
		assert.Equal(t, m.Session(), c.origin)
	}
	assert.Equal(t, []string{
		"upsert:p1",
		"set_quantity:p1", "set_quantity:p1", "set_quantity:p1", "set_quantity:p1", "set_quantity:p1",
		"upsert:p2",
		"delete:p1",
	}, got)

	_, ok := store.row("user1", "p1")
	assert.False(t, ok)
}

func TestRemoteFailure_KeepsLocalStateAndNotifies(t *testing.T) {
	m, store, errs := setupManager(t)
	store.failWrites(errors.New("store unavailable"))

	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "2.50"), 2)))
	flush(t, m)

	lines := m.Lines()
	require.Len(t, lines, 1, "local state is not rolled back")
	assert.Equal(t, 2, lines[0].Quantity)

	reported := errs.Drain("user1")
	require.Len(t, reported, 1)
	assert.Equal(t, "upsert", reported[0].Op)
	assert.Equal(t, "p1", reported[0].ProductID)
	assert.Equal(t, lines[0].ID, reported[0].LineID)
	assert.Contains(t, reported[0].Message, "store unavailable")

	assert.Empty(t, errs.Drain("user1"), "drained on read")
}

func TestReconcile_RemoteWins(t *testing.T) {
	m, store, _ := setupManager(t)
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 1)))
	flush(t, m)

	// another session changed the remote cart
	other := domain.NewLine(product("p9", "3.00"), 5)
	store.setRows("user1", other)

	require.NoError(t, m.Reconcile(context.Background()))

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, other.ID, lines[0].ID)
	assert.Equal(t, "15.00", m.Subtotal().StringFixed(2))
}

func TestReconcile_DrainsQueueFirst(t *testing.T) {
	m, _, _ := setupManager(t)
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 2)))
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 3)))

	require.NoError(t, m.Reconcile(context.Background()))

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
}

func TestReconcile_FetchFailureKeepsLocal(t *testing.T) {
	m, store, _ := setupManager(t)
	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 2)))
	store.failFetch(errors.New("timeout"))

	err := m.Reconcile(context.Background())
	require.Error(t, err)

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestMutations_AreMirrored(t *testing.T) {
	store := newMemStore()
	mir := setupMirror(t)
	m := New("user1", store, mir, nil, nil, Options{})
	defer m.Close()

	require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "4.00"), 2)))

	saved, err := mir.Load(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 2, saved[0].Quantity)

	m.ClearCart()
	saved, err = mir.Load(context.Background(), "user1")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestAddSameProductTwice_EndToEnd(t *testing.T) {
	m, store, _ := setupManager(t)
	p := product("p1", "10.00")

	require.NoError(t, m.AddToCart(domain.NewLine(p, 1)))
	require.NoError(t, m.AddToCart(domain.NewLine(p, 1)))
	flush(t, m)

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "20.00", m.Subtotal().StringFixed(2))

	row, ok := store.row("user1", "p1")
	require.True(t, ok)
	assert.Equal(t, 2, row.Quantity)
}

func TestClose_DrainsQueue(t *testing.T) {
	store := newMemStore()
	m := New("user1", store, nil, nil, nil, Options{})

	for i := 0; i < 20; i++ {
		require.NoError(t, m.AddToCart(domain.NewLine(product("p1", "1.00"), 1)))
	}
	m.Close()

	row, ok := store.row("user1", "p1")
	require.True(t, ok)
	assert.Equal(t, 20, row.Quantity)
	assert.ErrorIs(t, m.Flush(context.Background()), ErrClosed)
}

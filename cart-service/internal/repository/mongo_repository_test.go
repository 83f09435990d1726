package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/mood_store/cart-service/internal/domain"
	"github.com/fjod/mood_store/pkg/mood"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T, opts ...testcontainers.ContainerCustomizer) *MongoStore {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7", opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := OpenMongoStore(ctx, MongoConfig{URI: uri, Database: "testdb", AppName: "cart-test"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func line(productID string, qty int, version int64) domain.CartLine {
	l := domain.NewLine(client.ProductView{
		ID:       productID,
		Name:     "Lavender Candle",
		Price:    decimal.RequireFromString("12.50"),
		Moods:    []mood.Tag{mood.Relaxed, "Cozy"},
		Category: "home",
	}, qty)
	l.Version = version
	return l
}

func TestFetch_Empty(t *testing.T) {
	store := setupTestDB(t)

	lines, err := store.Fetch(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestUpsertIncrement_NewLine(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	l := line("p1", 3, 1)
	require.NoError(t, store.UpsertIncrement(ctx, "user1", l))

	lines, err := store.Fetch(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, l.ID, lines[0].ID)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("12.50").Equal(lines[0].UnitPrice))
	assert.Equal(t, []mood.Tag{mood.Relaxed, "Cozy"}, lines[0].Product.Moods)
}

func TestUpsertIncrement_ExistingLine_AddsQuantity(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	first := line("p1", 2, 1)
	require.NoError(t, store.UpsertIncrement(ctx, "user1", first))
	require.NoError(t, store.UpsertIncrement(ctx, "user1", line("p1", 5, 2)))

	lines, err := store.Fetch(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 7, lines[0].Quantity)
	assert.Equal(t, first.ID, lines[0].ID, "line id is fixed on insert")
	assert.Equal(t, int64(2), lines[0].Version)
}

func TestSetQuantity_LastWriterWins(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertIncrement(ctx, "user1", line("p1", 1, 10)))

	require.NoError(t, store.SetQuantity(ctx, "user1", "p1", 4, 20))
	err := store.SetQuantity(ctx, "user1", "p1", 9, 15)
	assert.ErrorIs(t, err, domain.ErrStaleWrite)

	lines, err := store.Fetch(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 4, lines[0].Quantity)
	assert.Equal(t, int64(20), lines[0].Version)
}

func TestSetQuantity_MissingLine(t *testing.T) {
	store := setupTestDB(t)

	err := store.SetQuantity(context.Background(), "user1", "p1", 2, 1)
	assert.ErrorIs(t, err, domain.ErrLineNotFound)
}

func TestDelete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertIncrement(ctx, "user1", line("p1", 2, 1)))
	require.NoError(t, store.UpsertIncrement(ctx, "user1", line("p2", 3, 1)))

	require.NoError(t, store.Delete(ctx, "user1", "p1"))
	require.NoError(t, store.Delete(ctx, "user1", "missing"))

	lines, err := store.Fetch(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0].ProductID)
}

func TestDeleteAll_OnlyThatUser(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertIncrement(ctx, "user1", line("p1", 2, 1)))
	require.NoError(t, store.UpsertIncrement(ctx, "user2", line("p1", 1, 1)))

	require.NoError(t, store.DeleteAll(ctx, "user1"))

	lines, err := store.Fetch(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = store.Fetch(ctx, "user2")
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestWatch_ReportsOriginAndDeletes(t *testing.T) {
	store := setupTestDB(t, mongodb.WithReplicaSet("rs0"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, store.EnablePreImages(ctx))

	events, err := store.Watch(ctx, "user1")
	require.NoError(t, err)

	require.NoError(t, store.UpsertIncrement(domain.WithOrigin(ctx, "session-a"), "user1", line("p1", 1, 1)))
	require.NoError(t, store.UpsertIncrement(ctx, "user2", line("p9", 1, 1)))
	require.NoError(t, store.Delete(domain.WithOrigin(ctx, "session-b"), "user1", "p1"))

	ev := <-events
	assert.Equal(t, domain.ChangeUpsert, ev.Kind)
	assert.Equal(t, "p1", ev.ProductID)
	assert.Equal(t, "session-a", ev.Origin)

	ev = <-events
	assert.Equal(t, domain.ChangeDelete, ev.Kind)
	assert.Equal(t, "p1", ev.ProductID)
	assert.Empty(t, ev.Origin, "pre-images do not carry the deleting session")
}

func TestContextCancellation(t *testing.T) {
	store := setupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	_, err := store.Fetch(ctx, "user1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}

func TestOpenMongoStore_Unreachable(t *testing.T) {
	ctx := context.Background()
	_, err := OpenMongoStore(ctx, MongoConfig{
		URI:            "mongodb://127.0.0.1:1/?directConnection=true",
		Database:       "cartdb",
		ConnectTimeout: 200 * time.Millisecond,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cartdb")
}

func TestOpenMongoStore_CreatesIndexes(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	cursor, err := store.collection.Indexes().List(ctx)
	require.NoError(t, err)
	var specs []struct {
		Name string `bson:"name"`
	}
	require.NoError(t, cursor.All(ctx, &specs))
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "user_id_1_product_id_1")
	assert.Contains(t, names, "updated_at_1")
}

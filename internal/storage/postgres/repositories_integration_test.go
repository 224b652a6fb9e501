package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

func TestCartStore_PostgresUpsertAndGet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	carts := NewCartStore(store)
	ctx := context.Background()

	_, err := carts.Get(ctx, "meenava-cart:s1")
	require.True(t, errors.Is(err, domain.ErrCartNotFound))

	first := []byte(`[{"productRef":{"id":"7","name":"King Fish"},"variant":"250g","quantity":1,"unitPrice":39900}]`)
	require.NoError(t, carts.Set(ctx, "meenava-cart:s1", first))
	require.NoError(t, carts.Set(ctx, "meenava-cart:s1", []byte(`[]`)))

	data, err := carts.Get(ctx, "meenava-cart:s1")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	require.Error(t, carts.Set(ctx, "meenava-cart:s2", []byte(`not json`)))
}

func TestCartStore_PostgresDeleteStale(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	carts := NewCartStore(store)
	ctx := context.Background()

	base := time.Now().UTC().Add(-48 * time.Hour)
	carts.now = func() time.Time { return base }
	require.NoError(t, carts.Set(ctx, "old", []byte(`[]`)))
	carts.now = func() time.Time { return time.Now().UTC() }
	require.NoError(t, carts.Set(ctx, "fresh", []byte(`[]`)))

	removed, err := carts.DeleteStale(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = carts.Get(ctx, "fresh")
	require.NoError(t, err)
}

func TestCatalogRepository_PostgresSeededCatalog(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	catalog := NewCatalogRepository(store)
	ctx := context.Background()

	all, err := catalog.List(ctx, "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 7)
	assert.Equal(t, "1", all[0].ID)

	king, err := catalog.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "King Fish (Seer Fish)", king.Name)
	assert.Equal(t, domain.CategoryFreshFish, king.Category)
	price, ok := king.Variant("250g")
	require.True(t, ok)
	assert.Equal(t, int64(39900), price.PriceMinor)
	assert.Equal(t, []string{"250g", "500g", "1kg"}, weights(king.Prices))

	dry, err := catalog.List(ctx, domain.CategoryDryFish)
	require.NoError(t, err)
	for _, p := range dry {
		assert.Equal(t, domain.CategoryDryFish, p.Category)
		assert.NotEmpty(t, p.Prices)
	}

	_, err = catalog.Get(ctx, "does-not-exist")
	require.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestCatalogRepository_PostgresUpsertReplacesVariants(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	catalog := NewCatalogRepository(store)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = store.DB().Exec(`DELETE FROM products WHERE id = 'it-lobster'`)
	})

	product := domain.Product{
		ID:       "it-lobster",
		Name:     "Lobster",
		Category: domain.CategorySeafoodSpecials,
		Prices: []domain.VariantPrice{
			{Weight: "500g", PriceMinor: 150000},
			{Weight: "1kg", PriceMinor: 280000, OriginalPriceMinor: 300000},
		},
		InStock: true,
		Rating:  4.5,
	}
	require.NoError(t, catalog.Upsert(ctx, product))

	product.Prices = []domain.VariantPrice{{Weight: "1kg", PriceMinor: 270000}}
	product.InStock = false
	require.NoError(t, catalog.Upsert(ctx, product))

	got, err := catalog.Get(ctx, "it-lobster")
	require.NoError(t, err)
	assert.False(t, got.InStock)
	assert.InDelta(t, 4.5, got.Rating, 0.001)
	require.Len(t, got.Prices, 1)
	assert.Equal(t, int64(270000), got.Prices[0].PriceMinor)

	product.Prices = []domain.VariantPrice{{Weight: "1kg"}, {Weight: "1kg"}}
	require.True(t, errors.Is(catalog.Upsert(ctx, product), domain.ErrInvalidArgument))
}

func TestOutboxRepository_PostgresFIFOFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	first, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "cart",
		AggregateID:   "s1",
		EventType:     "cart.item_added",
		Payload:       []byte(`{"session_id":"s1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := repo.Enqueue(domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: "cart",
		AggregateID:   "s1",
		EventType:     "cart.cleared",
		Payload:       []byte(`{"session_id":"s1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "outbox-fixed-id", second.ID)

	_, err = repo.Enqueue(second)
	require.True(t, errors.Is(err, domain.ErrInvalidArgument))

	pending, err := repo.PullPending(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(first.ID))
	require.NoError(t, repo.MarkFailed(second.ID))

	pending, err = repo.PullPending(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err = repo.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)

	require.True(t, errors.Is(repo.MarkSent("missing-outbox"), domain.ErrOutboxPublish))
	require.True(t, errors.Is(repo.MarkFailed("missing-outbox"), domain.ErrOutboxPublish))
}

func TestIdempotencyRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)
	created, err := repo.CreateProcessing("s1:key-1", "hash-a", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	_, err = repo.CreateProcessing("s1:key-1", "hash-a", ttl)
	require.True(t, errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists))
	_, err = repo.CreateProcessing("s1:key-1", "hash-b", ttl)
	require.True(t, errors.Is(err, domain.ErrIdempotencyHashMismatch))

	require.NoError(t, repo.MarkDone("s1:key-1", []byte(`{"cart":{}}`), 200))

	got, err := repo.Get("s1:key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 200, got.HTTPStatus)
	require.JSONEq(t, `{"cart":{}}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl), "ttl mismatch: expected %s, got %s", ttl, got.TTLAt)

	require.True(t, errors.Is(repo.MarkFailed("missing", nil, 500), domain.ErrIdempotencyKeyNotFound))
}

func TestIdempotencyRepository_PostgresExpiredKeyIsReused(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	now := time.Now().UTC()
	_, err := repo.CreateProcessing("s1:stale", "hash-a", now.Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone("s1:stale", []byte(`{}`), 200))

	record, err := repo.CreateProcessing("s1:stale", "hash-b", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "hash-b", record.RequestHash)

	got, err := repo.Get("s1:stale")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, got.Status)
	require.Empty(t, got.ResponseBody)
}

func TestIdempotencyRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	now := time.Now().UTC()
	for i, offset := range []time.Duration{-5 * time.Minute, -4 * time.Minute, -3 * time.Minute, time.Hour} {
		_, err := repo.CreateProcessing("idem-"+string(rune('a'+i)), "h", now.Add(offset))
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get("idem-d")
	require.NoError(t, err)
}

func weights(prices []domain.VariantPrice) []string {
	out := make([]string, 0, len(prices))
	for _, p := range prices {
		out = append(out, p.Weight)
	}
	return out
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

func TestCartStore_SetGet(t *testing.T) {
	store := NewCartStore(0)
	ctx := context.Background()

	_, err := store.Get(ctx, "meenava-cart:abc")
	require.ErrorIs(t, err, domain.ErrCartNotFound)

	data := []byte(`[{"productRef":{"id":"7"},"variant":"250g","quantity":1,"unitPrice":39900}]`)
	require.NoError(t, store.Set(ctx, "meenava-cart:abc", data))

	got, err := store.Get(ctx, "meenava-cart:abc")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	got[0] = 'x'
	again, err := store.Get(ctx, "meenava-cart:abc")
	require.NoError(t, err)
	assert.Equal(t, byte('['), again[0], "returned data must be a copy")
}

func TestCartStore_TTL(t *testing.T) {
	store := NewCartStore(time.Hour)
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("[]")))

	now = now.Add(59 * time.Minute)
	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestCartStore_RejectsEmptyKeyAndCanceledContext(t *testing.T) {
	store := NewCartStore(0)

	err := store.Set(context.Background(), " ", []byte("[]"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Get(ctx, "k")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.ErrorIs(t, store.Ping(ctx), context.Canceled)
}

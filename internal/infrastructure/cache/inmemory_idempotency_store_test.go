package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace/backend/internal/domain/shipping"
	"github.com/marketplace/backend/internal/infrastructure/config"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("first mark wins", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = store.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)

		processed, err := store.IsProcessed(ctx, "evt_1")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("expired entries can be marked again", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "evt_2", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, isNew)

		time.Sleep(20 * time.Millisecond)

		processed, err := store.IsProcessed(ctx, "evt_2")
		require.NoError(t, err)
		assert.False(t, processed)

		isNew, err = store.MarkProcessed(ctx, "evt_2", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("concurrent marks of one id", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := store.MarkProcessed(ctx, "evt_race", time.Hour); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestInMemoryIdempotencyStore_Sweep(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = store.MarkProcessed(ctx, fmt.Sprintf("evt_%d", i), time.Millisecond)
	}
	_, _ = store.MarkProcessed(ctx, "keep", time.Hour)
	time.Sleep(5 * time.Millisecond)

	store.seen.sweep()
	assert.Equal(t, 1, store.Size())
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestInMemoryRateCache(t *testing.T) {
	c := NewInMemoryRateCache()
	defer c.Close()
	ctx := context.Background()

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	options := []shipping.ShippingOption{{Carrier: "ups", ServiceLevel: "ground", Cost: decimal.NewFromInt(8)}}
	require.NoError(t, c.Set(ctx, "k", options, time.Hour))
	options[0].Carrier = "mutated"

	got, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ups", got[0].Carrier)

	require.NoError(t, c.Set(ctx, "short", options, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, found, _ = c.Get(ctx, "short")
	assert.False(t, found)
}

func TestFactory_FallsBackToMemory(t *testing.T) {
	f := NewFactory(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1})
	stores, err := f.CreateStores(context.Background())
	require.NoError(t, err)
	defer stores.Close()
	assert.Nil(t, stores.Redis)
	assert.IsType(t, &InMemoryIdempotencyStore{}, stores.Idempotency)

	strict := NewFactory(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}, WithInMemoryFallback(false))
	_, err = strict.CreateStores(context.Background())
	assert.Error(t, err)
}

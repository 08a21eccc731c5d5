package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presupuesto/internal/cache"
)

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Snapshot{ID: "c1", Entries: []Entry{{Product: prod("A", "1"), Qty: 1}}}))
	snap, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)

	now = now.Add(2 * time.Minute)
	_, err = store.Load(ctx, "c1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopiesEntries(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	entries := []Entry{{Product: prod("A", "1"), Qty: 1}}
	require.NoError(t, store.Save(ctx, Snapshot{ID: "c1", Entries: entries}))
	entries[0].Qty = 9

	snap, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, snap.Entries[0].Qty)

	require.NoError(t, store.Delete(ctx, "c1"))
	_, err = store.Load(ctx, "c1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRoundTripWithTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	keys := cache.Keys{Prefix: "test"}
	store := RedisStore{Store: cache.NewJSON(client, time.Hour), Keys: keys}
	ctx := context.Background()

	_, err = store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, Snapshot{ID: "c1", Entries: []Entry{{Product: prod("A", "12.34"), Qty: 3}}}))
	require.Equal(t, time.Hour, mr.TTL(keys.Cart("c1")))

	snap, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 3, snap.Entries[0].Qty)
	require.Equal(t, "12.34", snap.Entries[0].Product.Price.String())

	mr.FastForward(2 * time.Hour)
	_, err = store.Load(ctx, "c1")
	require.ErrorIs(t, err, ErrNotFound)
}

package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	key := GuestCartKey("device-1")

	_, err := store.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, key, []byte(`{"items":[]}`)))
	require.NoError(t, store.Put(ctx, key, []byte(`{"items":[1]}`)))
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, `{"items":[1]}`, string(got))

	_, err = store.Get(ctx, UserCartKey("device-1"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(context.Background(), "file:"+filepath.Join(t.TempDir(), "carts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedis(client, time.Hour)
	exerciseStore(t, store)

	require.NoError(t, store.Put(context.Background(), UserCartKey("u1"), []byte("x")))
	require.Equal(t, time.Hour, mr.TTL(UserCartKey("u1")))
	mr.FastForward(2 * time.Hour)
	_, err := store.Get(context.Background(), UserCartKey("u1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeysAreNamespaced(t *testing.T) {
	require.Equal(t, "cart:guest:abc", GuestCartKey(" abc "))
	require.Equal(t, "cart:user:u1", UserCartKey("u1"))
	require.NotEqual(t, GuestCartKey("x"), UserCartKey("x"))
}

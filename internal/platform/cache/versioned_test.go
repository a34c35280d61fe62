package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "test", time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	}

	key, err := c.BuildKey(ctx, "test", "value")
	require.NoError(t, err)
	require.Equal(t, "test:value:1", key)

	var got map[string]int
	hit, err := c.FetchJSON(ctx, key, &got, loader)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 1, got["calls"])

	hit, err = c.FetchJSON(ctx, key, &got, loader)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "test", "value")
	require.NoError(t, err)
	require.Equal(t, "test:value:2", key)

	hit, err = c.FetchJSON(ctx, key, &got, loader)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, got["calls"])
}

func TestNilCacheIsPassThrough(t *testing.T) {
	var c *Versioned
	var got []string
	hit, err := c.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, []string{"a"}, got)
	require.NoError(t, c.Bump(context.Background()))
}

func TestListenReceivesBumps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _ := newTestCache(t)

	seen := make(chan int64, 1)
	require.NoError(t, c.Listen(ctx, func(v int64) { seen <- v }))
	require.NoError(t, c.Bump(ctx))

	select {
	case v := <-seen:
		require.Equal(t, int64(1), v)
	case <-time.After(2 * time.Second):
		t.Fatal("bump not received")
	}
}

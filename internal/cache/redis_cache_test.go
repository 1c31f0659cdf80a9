package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SAP-F-2025/testportal-service/internal/utils"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedTest struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func newTestCache(t *testing.T) (CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "test", utils.NewNopLogger()), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "id:1", cachedTest{ID: 1, Title: "Algebra"}, time.Minute))
	assert.True(t, mr.Exists("test:id:1"))

	var got cachedTest
	require.NoError(t, c.Get(ctx, "id:1", &got))
	assert.Equal(t, "Algebra", got.Title)

	err := c.Get(ctx, "id:2", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "id:1", cachedTest{ID: 1}, time.Minute))
	mr.FastForward(2 * time.Minute)

	var got cachedTest
	assert.ErrorIs(t, c.Get(ctx, "id:1", &got), ErrCacheMiss)
}

func TestRedisCache_CacheOrExecute(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	load := func() (interface{}, error) {
		calls++
		return &cachedTest{ID: 7, Title: "Physics"}, nil
	}

	var first cachedTest
	require.NoError(t, c.CacheOrExecute(ctx, "id:7", &first, time.Minute, load))
	var second cachedTest
	require.NoError(t, c.CacheOrExecute(ctx, "id:7", &second, time.Minute, load))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, "Physics", second.Title)
}

func TestRedisCache_CacheOrExecuteDoesNotCacheErrors(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var dest cachedTest
	err := c.CacheOrExecute(ctx, "id:9", &dest, time.Minute, func() (interface{}, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("test:id:9"))
}

func TestRedisCache_DeleteAndPattern(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for _, k := range []string{"id:1", "id:2", "list:all"} {
		require.NoError(t, c.Set(ctx, k, cachedTest{}, time.Minute))
	}

	require.NoError(t, c.Delete(ctx, "list:all"))
	assert.False(t, mr.Exists("test:list:all"))

	require.NoError(t, c.DeletePattern(ctx, "id:*"))
	assert.False(t, mr.Exists("test:id:1"))
	assert.False(t, mr.Exists("test:id:2"))
}

func TestNoopCache_AlwaysExecutes(t *testing.T) {
	c := NewNoopCache()
	ctx := context.Background()

	calls := 0
	for i := 0; i < 2; i++ {
		var dest cachedTest
		err := c.CacheOrExecute(ctx, "id:1", &dest, time.Minute, func() (interface{}, error) {
			calls++
			return cachedTest{ID: 1, Title: "Chemistry"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "Chemistry", dest.Title)
	}
	assert.Equal(t, 2, calls)
}

func TestSafeInvalidatePattern_KeepsOtherPrefixes(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "7", cachedTest{ID: 7}, time.Minute))
	require.NoError(t, mr.Set("session:7", "other service"))

	SafeInvalidatePattern(ctx, c, utils.NewNopLogger(), "*")
	assert.False(t, mr.Exists("test:7"))
	assert.True(t, mr.Exists("session:7"))

	mr.Close()
	SafeInvalidatePattern(ctx, c, utils.NewNopLogger(), "*")
	SafeDelete(ctx, c, utils.NewNopLogger(), "7")
}

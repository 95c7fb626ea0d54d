package store

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU(t *testing.T) {
	lru, err := New(Option{Size: 4})
	require.NoError(t, err)
	testBasic(t, lru)
	testEviction(t, lru)
	testTTL(t, lru)
}

func TestRedis(t *testing.T) {
	host := os.Getenv("BRAID_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("BRAID_TEST_REDIS_HOST is not set")
	}

	redis, err := New(Option{Type: "redis", Name: "braid_test", Host: host, Port: os.Getenv("BRAID_TEST_REDIS_PORT")})
	require.NoError(t, err)
	testBasic(t, redis)
	testTTL(t, redis)
}

func TestNew(t *testing.T) {
	_, err := New(Option{Type: "mongo"})
	assert.Error(t, err)

	_, err = New(Option{Type: "redis"})
	assert.Error(t, err)
}

func testBasic(t *testing.T, kv Store) {
	kv.Clear()
	require.NoError(t, kv.Set("key1", "bar", 0))
	require.NoError(t, kv.Set("key2", "return 1", 0))

	value, ok := kv.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "bar", value)

	require.NoError(t, kv.Set("key1", "foo", 0))
	value, ok = kv.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "foo", value)

	assert.True(t, kv.Has("key1"))
	assert.False(t, kv.Has("missing"))
	assert.Equal(t, 2, kv.Len())
	assert.ElementsMatch(t, []string{"key1", "key2"}, kv.Keys())

	value, err := kv.GetSet("key3", 0, func(key string) (interface{}, error) {
		return fmt.Sprintf("value of %s", key), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value of key3", value)

	_, err = kv.GetSet("key4", 0, func(key string) (interface{}, error) {
		return nil, fmt.Errorf("no value")
	})
	assert.Error(t, err)
	assert.False(t, kv.Has("key4"))

	require.NoError(t, kv.Del("key1"))
	_, ok = kv.Get("key1")
	assert.False(t, ok)

	kv.Clear()
	assert.Equal(t, 0, kv.Len())
}

func testEviction(t *testing.T, kv Store) {
	kv.Clear()
	for i := 0; i < 10; i++ {
		kv.Set(fmt.Sprintf("key%d", i), i, 0)
	}
	assert.Equal(t, 4, kv.Len())
	assert.True(t, kv.Has("key9"))
}

func testTTL(t *testing.T, kv Store) {
	kv.Clear()
	require.NoError(t, kv.Set("short", "gone soon", 50*time.Millisecond))
	require.NoError(t, kv.Set("long", "stays", 0))
	assert.True(t, kv.Has("short"))

	assert.Eventually(t, func() bool {
		_, ok := kv.Get("short")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, kv.Has("short"))
	assert.Equal(t, []string{"long"}, kv.Keys())
	assert.Equal(t, 1, kv.Len())

	calls := 0
	load := func(key string) (interface{}, error) {
		calls++
		return "loaded " + key, nil
	}
	value, err := kv.GetSet("lazy", 0, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded lazy", value)
	value, err = kv.GetSet("lazy", 0, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded lazy", value)
	assert.Equal(t, 1, calls)
	kv.Clear()
}

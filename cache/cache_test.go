package cache

import (
	"context"
	"testing"
	"time"

	kbbadger "github.com/poiesic/kbindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func implementations(t *testing.T) map[string]Cache {
	t.Helper()

	memory, err := NewMemory()
	require.NoError(t, err)

	backend, err := kbbadger.OpenBackend("", true)
	require.NoError(t, err)
	persistent, err := NewBadger(backend)
	require.NoError(t, err)

	t.Cleanup(func() {
		memory.Close()
		persistent.Close()
		backend.Close()
	})
	return map[string]Cache{"memory": memory, "badger": persistent}
}

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := c.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "k1", []byte("payload"), time.Minute))
			value, ok, err := c.Get(ctx, "k1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("payload"), value)

			// Empty payloads are valid cached values.
			require.NoError(t, c.Set(ctx, "empty", []byte{}, time.Minute))
			value, ok, err = c.Get(ctx, "empty")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Empty(t, value)
		})
	}
}

func TestCache_NonPositiveTTLStoresNothing(t *testing.T) {
	ctx := context.Background()
	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
			_, ok, err := c.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			keys := []string{
				SearchKey("alice", "ws1", 5, "one"),
				SearchKey("alice", "ws1", 5, "two"),
				SearchKey("alice", "", 5, "one"),
				SearchKey("alice", "ws2", 5, "one"),
				SearchKey("bob", "ws1", 5, "one"),
			}
			for _, key := range keys {
				require.NoError(t, c.Set(ctx, key, []byte(key), time.Minute))
			}

			total := 0
			for _, pattern := range InvalidationPatterns("alice", "ws1") {
				n, err := c.Invalidate(ctx, pattern)
				require.NoError(t, err)
				total += n
			}
			assert.Equal(t, 3, total)

			for i, key := range keys {
				_, ok, err := c.Get(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, i >= 3, ok, "key %s", key)
			}

			n, err := c.Invalidate(ctx, "kb:search:nobody:*")
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestMemory_InvalidateSkipsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory()
	require.NoError(t, err)
	defer m.Close()

	current := time.Now()
	m.now = func() time.Time { return current }

	require.NoError(t, m.Set(ctx, "kb:search:a:all:1:x", []byte("v"), time.Second))
	current = current.Add(2 * time.Second)

	n, err := m.Invalidate(ctx, "kb:search:a:*")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, m.keys)
}

func TestMemory_SetDropsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory()
	require.NoError(t, err)
	defer m.Close()

	current := time.Now()
	m.now = func() time.Time { return current }

	require.NoError(t, m.Set(ctx, "kb:search:a:all:1:x", []byte("v"), time.Second))
	require.NoError(t, m.Set(ctx, "kb:search:a:all:1:y", []byte("v"), time.Hour))
	assert.Len(t, m.keys, 2)

	current = current.Add(2 * sweepInterval)
	require.NoError(t, m.Set(ctx, "kb:search:b:all:1:z", []byte("v"), time.Hour))

	assert.Len(t, m.keys, 2)
	assert.NotContains(t, m.keys, "kb:search:a:all:1:x")
	assert.Contains(t, m.keys, "kb:search:a:all:1:y")
	assert.Contains(t, m.keys, "kb:search:b:all:1:z")
}

func TestNew(t *testing.T) {
	backend, err := kbbadger.OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	for _, name := range []string{"", BackendMemory, BackendBadger, BackendNone} {
		c, err := New(name, backend)
		require.NoError(t, err, name)
		require.NotNil(t, c)
		c.Close()
	}

	_, err = New("redis", backend)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = New(BackendBadger, nil)
	assert.ErrorIs(t, err, ErrBackendRequired)
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

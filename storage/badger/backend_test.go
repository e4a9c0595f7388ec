package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
}

func TestBackend_WithTransaction(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	called := false
	err = backend.WithTransaction(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	err = backend.WithTransaction(ctx, func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBackend_DeletePrefix(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range []string{"a:1", "a:2", "a:3", "b:1"} {
			if err := tx.Set([]byte(key), []byte("v")); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	removed, err := backend.deletePrefix([]byte("a:"))
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	err = backend.WithTx(func(tx *badger.Txn) error {
		assert.Empty(t, collectKeys(tx, []byte("a:")))
		assert.Len(t, collectKeys(tx, []byte("b:")), 1)
		return nil
	}, false)
	require.NoError(t, err)

	removed, err = backend.deletePrefix([]byte("zzz"))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	assert.InDelta(t, 0, cosineDistance(a, norm(a), []float32{2, 0, 0}), 1e-6)
	assert.InDelta(t, 1, cosineDistance(a, norm(a), []float32{0, 3, 0}), 1e-6)
	assert.InDelta(t, 2, cosineDistance(a, norm(a), []float32{-1, 0, 0}), 1e-6)
	assert.Equal(t, float32(1), cosineDistance(a, norm(a), []float32{0, 0, 0}))
}

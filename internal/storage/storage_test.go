package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsync/docsync/internal/config"
)

func testRoundTrip(t *testing.T, store Storage) {
	t.Helper()
	ctx := context.Background()

	_, err := store.GetContent(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetContent(ctx, "doc-1", "hello"))
	got, err := store.GetContent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	// Last writer wins.
	require.NoError(t, store.SetContent(ctx, "doc-1", "world"))
	got, err = store.GetContent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "world", got)

	// Empty content is a valid document, distinct from absent.
	require.NoError(t, store.SetContent(ctx, "doc-2", ""))
	got, err = store.GetContent(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	testRoundTrip(t, store)
}

func TestPebbleStore(t *testing.T) {
	store, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	testRoundTrip(t, store)
}

func TestPebbleStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenPebble(dir)
	require.NoError(t, err)
	require.NoError(t, store.SetContent(ctx, "doc-1", "durable"))
	require.NoError(t, store.Close())

	reopened, err := OpenPebble(dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetContent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "durable", got)
}

func TestOpenSelectsBackend(t *testing.T) {
	store, err := Open(config.StorageConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	store, err = Open(config.StorageConfig{Backend: config.BackendPebble, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Pebble{}, store)
	store.Close()

	_, err = Open(config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
}

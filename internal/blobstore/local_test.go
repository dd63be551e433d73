package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutGetOverwrite(t *testing.T) {
	root := t.TempDir()
	st, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "ingest/product.xlsx", []byte("first")))
	require.NoError(t, st.Put(ctx, "ingest/product.xlsx", []byte("second")))

	got, err := st.Get(ctx, "ingest/product.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	onDisk, err := os.ReadFile(filepath.Join(root, "ingest", "product.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(onDisk))

	leftovers, err := os.ReadDir(filepath.Join(root, ".tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLocalStoreGetMissing(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Get(context.Background(), "customer.xlsx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, Retryable(err))
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "/abs.xlsx", "../up.xlsx", "a/../../b", ".tmp/x", `a\b`} {
		err := st.Put(context.Background(), key, []byte("x"))
		require.Error(t, err, "key %q", key)
		assert.True(t, errors.Is(err, ErrInvalidKey), "key %q", key)
	}
}

func TestLocalStoreHonoursCanceledContext(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = st.Put(ctx, "order_header.xlsx", []byte("x"))
	require.Error(t, err)
	assert.False(t, Retryable(err))
}

package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCopiesPayloads(t *testing.T) {
	st := NewMemoryStore()
	payload := []byte("abc")
	require.NoError(t, st.Put(context.Background(), "k.xlsx", payload))
	payload[0] = 'z'

	got, err := st.Get(context.Background(), "k.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, st.Len())

	_, err = st.Get(context.Background(), "missing.xlsx")
	assert.True(t, errors.Is(err, ErrNotFound))
}
